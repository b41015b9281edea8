package relay

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/hub"
	"github.com/DoyleJ11/coop-relay/internal/session"
	"github.com/DoyleJ11/coop-relay/internal/types"
)

var ErrClosed = errors.New("relay closed")

type Msg interface{ isRelayMsg() }

// Join registers a freshly accepted connection. Outbox receives encoded
// server messages and is closed by the relay when the connection is dropped.
type Join struct {
	ConnID session.ConnID
	Outbox chan []byte
}

func (Join) isRelayMsg() {}

type Leave struct{ ConnID session.ConnID }

func (Leave) isRelayMsg() {}

// FromClient carries one raw inbound frame.
type FromClient struct {
	ConnID session.ConnID
	Data   []byte
}

func (FromClient) isRelayMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRelayMsg() {}

type Shutdown struct{}

func (Shutdown) isRelayMsg() {}

// View is a point-in-time copy of the session.
type View struct {
	Phase      session.Phase   `json:"phase"`
	HostID     session.ConnID  `json:"host_id,omitempty"`
	Players    types.Roster    `json:"players"`
	Enemies    json.RawMessage `json:"enemies"`
	CR         json.Number     `json:"cr"`
	NumClients int             `json:"num_clients"`
}

// Relay owns the session and every connection's outbox. All mutation happens
// on the loop goroutine, one inbox message at a time, so handlers never race.
type Relay struct {
	inbox   chan Msg
	session *session.Session
	conns   *hub.Registry
	evict   []session.ConnID
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, log *zap.Logger) *Relay {
	ctx, cancel := context.WithCancel(parent)

	r := &Relay{
		inbox:   make(chan Msg, 256),
		session: session.New(),
		conns:   hub.NewRegistry(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

// Inbox exposes the raw inbox for tests.
func (r *Relay) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the loop has exited.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Submit hands msg to the loop, giving up if the relay stops or ctx ends.
func (r *Relay) Submit(ctx context.Context, msg Msg) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.inbox <- msg:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State fetches a View from the loop.
func (r *Relay) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Submit(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Relay) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.join(msg.ConnID, msg.Outbox)

			case Leave:
				r.disconnect(msg.ConnID, "closed")

			case FromClient:
				r.dispatch(msg.ConnID, msg.Data)

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
			r.flushEvictions()
		}
	}
}

func (r *Relay) join(id session.ConnID, outbox chan []byte) {
	if r.conns.Has(id) {
		r.log.Warn("duplicate connection id, rejecting", zap.String("conn_id", string(id)))
		close(outbox)
		return
	}
	player, err := r.session.Join(id)
	if err != nil {
		r.log.Error("session join failed", zap.String("conn_id", string(id)), zap.Error(err))
		close(outbox)
		return
	}
	r.conns.Add(id, outbox)

	r.log.Info("client connected",
		zap.String("conn_id", string(id)),
		zap.Bool("is_host", player.IsHost),
		zap.Int("total", r.conns.Len()),
	)

	r.sendTo(id, types.InitMessage{
		Type:      types.TypeInit,
		ClientID:  id,
		IsHost:    player.IsHost,
		GameState: r.session.Phase(),
	})
	r.broadcastLobby()
}

// disconnect is the single cleanup path for a connection, whatever ended it.
// Running it twice for the same id is a no-op.
func (r *Relay) disconnect(id session.ConnID, reason string) {
	if !r.conns.Remove(id) {
		return
	}
	events, err := r.session.Leave(id)
	if err != nil {
		r.log.Error("session leave failed", zap.String("conn_id", string(id)), zap.Error(err))
	}

	r.log.Info("client disconnected",
		zap.String("conn_id", string(id)),
		zap.String("reason", reason),
		zap.Int("total", r.conns.Len()),
	)

	r.publish(events)
	r.broadcastLobby()
}

// flushEvictions drops every connection that failed a send during the last
// message. Evicting can itself trigger broadcasts that fail, so drain until empty.
func (r *Relay) flushEvictions() {
	for len(r.evict) > 0 {
		id := r.evict[0]
		r.evict = r.evict[1:]
		r.disconnect(id, "send failed")
	}
}

func (r *Relay) view() View {
	host, _ := r.session.HostID()
	return View{
		Phase:      r.session.Phase(),
		HostID:     host,
		Players:    r.session.Roster(),
		Enemies:    r.session.Enemies(),
		CR:         r.session.CR(),
		NumClients: r.conns.Len(),
	}
}

func (r *Relay) shutdown() {
	r.conns.Close()
	r.cancel()
}
