package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomsBroadcastExactlyOnce(t *testing.T) {
	r := NewRooms()
	sub1 := newFakeConn("c1", "alice")
	sub2 := newFakeConn("c2", "bob")
	outsider := newFakeConn("c3", "carol")

	r.Subscribe(sub1, "team-42")
	r.Subscribe(sub2, "team-42")
	r.Subscribe(outsider, "team-99")

	delivered := r.Broadcast("team-42", "payload")

	assert.Equal(t, 2, delivered)
	require.Len(t, sub1.received(), 1)
	require.Len(t, sub2.received(), 1)
	assert.Empty(t, outsider.received(), "other channels must not receive")
}

func TestRoomsBroadcastSkipsDeadConnections(t *testing.T) {
	r := NewRooms()
	alive := newFakeConn("c1", "alice")
	dead := newFakeConn("c2", "bob")
	dead.broken = true

	r.Subscribe(alive, "team-1")
	r.Subscribe(dead, "team-1")

	// A connection that has gone away is silently skipped, never an error
	delivered := r.Broadcast("team-1", "payload")
	assert.Equal(t, 1, delivered)
}

func TestRoomsUnsubscribe(t *testing.T) {
	r := NewRooms()
	conn := newFakeConn("c1", "alice")

	r.Subscribe(conn, "team-1")
	r.Unsubscribe(conn, "team-1")

	assert.Equal(t, 0, r.Broadcast("team-1", "payload"))
	assert.Empty(t, conn.received())
}

func TestRoomsDropRemovesAllSubscriptions(t *testing.T) {
	r := NewRooms()
	conn := newFakeConn("c1", "alice")
	stays := newFakeConn("c2", "bob")

	r.Subscribe(conn, "team-a")
	r.Subscribe(conn, "team-b")
	r.Subscribe(stays, "team-a")

	r.Drop(conn)

	assert.Equal(t, 1, r.Broadcast("team-a", "x"))
	assert.Equal(t, 0, r.Broadcast("team-b", "y"))
	assert.Empty(t, conn.received(), "dropped connection must not receive anything")
	assert.Equal(t, 0, r.Subscribers("team-b"), "empty channels are removed")
}

func TestRoomsBroadcastExcept(t *testing.T) {
	r := NewRooms()
	sender := newFakeConn("c1", "alice")
	peer := newFakeConn("c2", "bob")

	r.Subscribe(sender, "team-1")
	r.Subscribe(peer, "team-1")

	delivered := r.BroadcastExcept("team-1", sender, "typing")

	assert.Equal(t, 1, delivered)
	assert.Empty(t, sender.received())
	assert.Len(t, peer.received(), 1)
}

func TestRoomsBroadcastEmptyChannel(t *testing.T) {
	r := NewRooms()
	assert.Equal(t, 0, r.Broadcast("nobody-here", "payload"))
}
