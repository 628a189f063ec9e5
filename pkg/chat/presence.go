package chat

import "sync"

// Metrics receives counters from the live path. Implemented by the server's
// Prometheus metrics; all methods must be safe for concurrent use.
type Metrics interface {
	RecordActiveConnections(count int)
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordBroadcastFanout(delivered int)
	RecordMessageBroadcast(kind string)
}

// Presence is the process-wide registry of live connections keyed by
// identity. It is created at server start, injected into everything that
// needs it, and mutated only through Register/Unregister. An identity with no
// entry is offline. Multiple simultaneous connections per identity are
// permitted (multiple tabs); lookups return all of them.
type Presence struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]Conn // identity -> connection ID -> conn
	byConn  map[string]string          // connection ID -> identity
	metrics Metrics
}

// NewPresence creates an empty presence registry
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string]map[string]Conn),
		byConn: make(map[string]string),
	}
}

// SetMetrics attaches metrics to the registry
func (p *Presence) SetMetrics(metrics Metrics) {
	p.metrics = metrics
}

// Register adds a connection to its identity's set. Idempotent per
// connection.
func (p *Presence) Register(conn Conn) {
	p.mu.Lock()
	if _, ok := p.byConn[conn.ID()]; ok {
		p.mu.Unlock()
		return
	}
	set, ok := p.byUser[conn.Identity()]
	if !ok {
		set = make(map[string]Conn)
		p.byUser[conn.Identity()] = set
	}
	set[conn.ID()] = conn
	p.byConn[conn.ID()] = conn.Identity()
	total := len(p.byConn)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordConnectionOpened()
		p.metrics.RecordActiveConnections(total)
	}
}

// Unregister removes a connection from its identity's set. When the set
// becomes empty the presence entry is deleted entirely, so Lookup for that
// identity reports offline.
func (p *Presence) Unregister(conn Conn) {
	p.mu.Lock()
	identity, ok := p.byConn[conn.ID()]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.byConn, conn.ID())
	if set, ok := p.byUser[identity]; ok {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(p.byUser, identity)
		}
	}
	total := len(p.byConn)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordConnectionClosed()
		p.metrics.RecordActiveConnections(total)
	}
}

// Lookup returns a snapshot of the identity's current connections. The slice
// is empty when the identity is offline; callers deliver best-effort and must
// tolerate that.
func (p *Presence) Lookup(identity string) []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.byUser[identity]
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Connections returns a snapshot of every live connection
func (p *Presence) Connections() []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := make([]Conn, 0, len(p.byConn))
	for _, set := range p.byUser {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	return conns
}

// Online returns the number of identities with at least one live connection
func (p *Presence) Online() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.byUser)
}
