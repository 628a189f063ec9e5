package chat

import (
	"errors"
	"sync"
)

// fakeConn records every event delivered to it. Setting broken makes Send
// fail, standing in for a connection whose socket has gone away.
type fakeConn struct {
	id       string
	identity string

	mu     sync.Mutex
	events []any
	broken bool
}

func newFakeConn(id, identity string) *fakeConn {
	return &fakeConn{id: id, identity: identity}
}

func (f *fakeConn) ID() string       { return f.id }
func (f *fakeConn) Identity() string { return f.identity }

func (f *fakeConn) Send(event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection closed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) received() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.events))
	copy(out, f.events)
	return out
}
