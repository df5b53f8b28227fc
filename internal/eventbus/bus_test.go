package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishNew(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(4)
	defer b.Unsubscribe(id)

	subject := Subject{AssignmentID: 7, WorkerID: "w1", ProjectID: "p1", Day: "2026-10-19"}
	sent := b.PublishNew(EventAssignmentStarted, subject, map[string]string{"from": "queued"})

	got := <-ch
	require.NotNil(t, got)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, EventAssignmentStarted, got.Type)
	assert.Equal(t, subject, got.Subject)
	assert.Equal(t, "queued", got.Metadata["from"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestBus_DropsWhenBufferFull(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)

	b.PublishNew(EventAssignmentCreated, Subject{AssignmentID: 1}, nil)
	b.PublishNew(EventAssignmentCreated, Subject{AssignmentID: 2}, nil)

	first := <-ch
	assert.Equal(t, int64(1), first.Subject.AssignmentID)

	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}
