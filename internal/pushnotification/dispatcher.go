package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/sitecrew/internal/eventbus"
)

type Dispatcher struct {
	eventBus *eventbus.Bus
	notifier Notifier
}

func NewDispatcher(eventBus *eventbus.Bus, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		notifier: notifier,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	payload := payloadFor(event)
	if payload == nil {
		return
	}
	if event.Subject.SupervisorID == "" {
		slog.DebugContext(ctx, "push dispatcher: assignment has no supervisor", "assignment_id", event.Subject.AssignmentID)
		return
	}
	d.notifier.NotifySupervisor(ctx, event.Subject.SupervisorID, payload)
}

// payloadFor returns nil for events supervisors are not paged about.
func payloadFor(event *eventbus.Event) *NotificationPayload {
	subj := event.Subject
	task := subj.TaskName
	if task == "" {
		task = fmt.Sprintf("assignment #%d", subj.AssignmentID)
	}
	p := &NotificationPayload{
		URL: fmt.Sprintf("/projects/%s/assignments/%d", subj.ProjectID, subj.AssignmentID),
		Tag: fmt.Sprintf("assignment-%d", subj.AssignmentID),
	}
	switch event.Type {
	case eventbus.EventAssignmentCompleted:
		p.Title = "Task completed"
		p.Body = fmt.Sprintf("%s finished %s", subj.WorkerID, task)
	case eventbus.EventAssignmentCancelled:
		p.Title = "Task cancelled"
		p.Body = fmt.Sprintf("%s for %s was cancelled", task, subj.WorkerID)
		if reason := event.Metadata["reason"]; reason != "" {
			p.Body += ": " + reason
		}
	case eventbus.EventAssignmentGeofenceRejected:
		p.Title = "Start refused outside site"
		p.Body = fmt.Sprintf("%s tried to start %s %sm from the site (allowed %sm)",
			subj.WorkerID, task, event.Metadata["distance_meters"], event.Metadata["allowed_radius_meters"])
		p.Tag = fmt.Sprintf("geofence-%d", subj.AssignmentID)
	default:
		return nil
	}
	return p
}
