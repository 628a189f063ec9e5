package chat

import "sync"

// Rooms tracks which live connections are subscribed to which team channel
// and drives broadcast fan-out. Subscriptions are connection-level state, not
// team roster membership: they vanish with the connection and are never
// persisted.
type Rooms struct {
	mu       sync.RWMutex
	channels map[string]map[string]Conn     // channel -> connection ID -> conn
	byConn   map[string]map[string]struct{} // connection ID -> channel set
	metrics  Metrics
}

// NewRooms creates an empty room multiplexer
func NewRooms() *Rooms {
	return &Rooms{
		channels: make(map[string]map[string]Conn),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// SetMetrics attaches metrics to the multiplexer
func (r *Rooms) SetMetrics(metrics Metrics) {
	r.metrics = metrics
}

// Subscribe attaches a connection to a channel's subscriber set
func (r *Rooms) Subscribe(conn Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[string]Conn)
		r.channels[channel] = subs
	}
	subs[conn.ID()] = conn

	chans, ok := r.byConn[conn.ID()]
	if !ok {
		chans = make(map[string]struct{})
		r.byConn[conn.ID()] = chans
	}
	chans[channel] = struct{}{}
}

// Unsubscribe detaches a connection from a channel
func (r *Rooms) Unsubscribe(conn Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detach(conn.ID(), channel)
}

// Drop removes a connection from every channel it was subscribed to. Called
// on connection teardown so no orphaned subscriptions survive a closed
// connection.
func (r *Rooms) Drop(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.byConn[conn.ID()] {
		r.detach(conn.ID(), channel)
	}
}

// detach must be called with the lock held
func (r *Rooms) detach(connID, channel string) {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	if chans, ok := r.byConn[connID]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Broadcast delivers an event to every connection currently subscribed to
// the channel, best-effort: a connection that has gone away is silently
// skipped. Returns the number of successful deliveries.
func (r *Rooms) Broadcast(channel string, event any) int {
	return r.broadcast(channel, "", event)
}

// BroadcastExcept is Broadcast minus one connection, used for typing
// indicators where the sender must not hear its own echo.
func (r *Rooms) BroadcastExcept(channel string, except Conn, event any) int {
	return r.broadcast(channel, except.ID(), event)
}

func (r *Rooms) broadcast(channel, exceptID string, event any) int {
	r.mu.RLock()
	subs := r.channels[channel]
	conns := make([]Conn, 0, len(subs))
	for id, c := range subs {
		if id == exceptID {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	// Sends happen outside the lock; they are non-blocking by contract
	delivered := 0
	for _, c := range conns {
		if err := c.Send(event); err == nil {
			delivered++
		}
	}

	if r.metrics != nil {
		r.metrics.RecordBroadcastFanout(delivered)
	}
	return delivered
}

// Subscribers returns the current subscriber count for a channel
func (r *Rooms) Subscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels[channel])
}
