package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventAssignmentCreated          EventType = "assignment.created"
	EventAssignmentStarted          EventType = "assignment.started"
	EventAssignmentPaused           EventType = "assignment.paused"
	EventAssignmentCompleted        EventType = "assignment.completed"
	EventAssignmentCancelled        EventType = "assignment.cancelled"
	EventAssignmentReset            EventType = "assignment.reset"
	EventAssignmentProgress         EventType = "assignment.progress"
	EventAssignmentUpdated          EventType = "assignment.updated"
	EventAssignmentGeofenceRejected EventType = "assignment.geofence_rejected"
)

// Subject identifies the assignment an event is about.
type Subject struct {
	AssignmentID int64  `json:"assignmentId"`
	WorkerID     string `json:"workerId"`
	ProjectID    string `json:"projectId"`
	SupervisorID string `json:"supervisorId,omitempty"`
	Day          string `json:"day"`
	TaskName     string `json:"taskName,omitempty"`
}

type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Subject   Subject           `json:"subject"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, subject Subject, metadata map[string]string) *Event {
	event := &Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Subject:   subject,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	b.Publish(event)
	return event
}
