package hub

import (
	"errors"

	"github.com/DoyleJ11/coop-relay/internal/session"
)

var ErrUnknownConn = errors.New("unknown connection")
var ErrOutboxFull = errors.New("outbox full")

// Registry tracks live connections by their outbox. It is owned by the relay
// loop and is not safe for concurrent use.
type Registry struct {
	conns map[session.ConnID]chan []byte
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[session.ConnID]chan []byte)}
}

func (r *Registry) Add(id session.ConnID, outbox chan []byte) {
	r.conns[id] = outbox
}

// Remove forgets id and closes its outbox so the writer side can hang up.
// It reports false if id was not registered.
func (r *Registry) Remove(id session.ConnID) bool {
	ch, ok := r.conns[id]
	if !ok {
		return false
	}
	delete(r.conns, id)
	close(ch)
	return true
}

func (r *Registry) Has(id session.ConnID) bool {
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Len() int { return len(r.conns) }

func (r *Registry) IDs() []session.ConnID {
	ids := make([]session.ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// SendTo queues payload for one connection without blocking.
func (r *Registry) SendTo(id session.ConnID, payload []byte) error {
	ch, ok := r.conns[id]
	if !ok {
		return ErrUnknownConn
	}
	select {
	case ch <- payload:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Broadcast queues payload for every connection except exclude (pass "" to
// include everyone). Each recipient is tried independently; the ids that could
// not take the message are returned for the caller to evict.
func (r *Registry) Broadcast(payload []byte, exclude session.ConnID) []session.ConnID {
	var failed []session.ConnID
	for id, ch := range r.conns {
		if id == exclude {
			continue
		}
		select {
		case ch <- payload:
		default:
			failed = append(failed, id)
		}
	}
	return failed
}

// Close hangs up every connection.
func (r *Registry) Close() {
	for id, ch := range r.conns {
		close(ch)
		delete(r.conns, id)
	}
}
