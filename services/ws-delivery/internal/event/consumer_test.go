package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tom-notifier/shared/bus"
	"github.com/tom-notifier/shared/wire"
)

type fakeDedup struct {
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: make(map[string]bool)} }

func (f *fakeDedup) SeenOrRecord(notificationID, status string) bool {
	key := notificationID + ":" + status
	if f.seen[key] {
		return true
	}
	f.seen[key] = true
	return false
}

func TestHandleDropsMalformedBody(t *testing.T) {
	dispatched := 0
	c := NewConsumer(newFakeDedup(), func(wire.NotificationEvent, wire.WSFrame) { dispatched++ })

	action := c.Handle(context.Background(), []byte("not json"))

	assert.Equal(t, bus.RejectDrop, action)
	assert.Equal(t, 0, dispatched)
}

func TestHandleDispatchesOnFirstSight(t *testing.T) {
	var got []wire.NotificationEvent
	c := NewConsumer(newFakeDedup(), func(e wire.NotificationEvent, _ wire.WSFrame) { got = append(got, e) })

	body, err := json.Marshal(wire.NotificationEvent{ID: "abc", Status: wire.StatusNew})
	require.NoError(t, err)

	action := c.Handle(context.Background(), body)

	assert.Equal(t, bus.Ack, action)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
}

func TestHandleSuppressesRedeliveredDuplicate(t *testing.T) {
	dispatched := 0
	c := NewConsumer(newFakeDedup(), func(wire.NotificationEvent, wire.WSFrame) { dispatched++ })

	body, err := json.Marshal(wire.NotificationEvent{ID: "abc", Status: wire.StatusNew})
	require.NoError(t, err)

	c.Handle(context.Background(), body)
	action := c.Handle(context.Background(), body)

	assert.Equal(t, bus.Ack, action)
	assert.Equal(t, 1, dispatched)
}

func TestHandleTreatsDistinctStatusAsFresh(t *testing.T) {
	dispatched := 0
	c := NewConsumer(newFakeDedup(), func(wire.NotificationEvent, wire.WSFrame) { dispatched++ })

	newBody, _ := json.Marshal(wire.NotificationEvent{ID: "abc", Status: wire.StatusNew})
	deletedBody, _ := json.Marshal(wire.NotificationEvent{ID: "abc", Status: wire.StatusDeleted})

	c.Handle(context.Background(), newBody)
	c.Handle(context.Background(), deletedBody)

	assert.Equal(t, 2, dispatched)
}
