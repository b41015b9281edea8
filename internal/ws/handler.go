package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/relay"
	"github.com/DoyleJ11/coop-relay/internal/session"
)

const defaultOutboxSize = 64

type Options struct {
	// OriginPatterns is passed to websocket.Accept. The game page is served
	// from a different port than the relay, so this is usually "*".
	OriginPatterns []string
	ReadLimit      int64
	OutboxSize     int
}

func Handler(rl *relay.Relay, opts Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		if opts.ReadLimit > 0 {
			conn.SetReadLimit(opts.ReadLimit)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		id := session.ConnID(uuid.NewString())
		log := log.With(zap.String("conn_id", string(id)), zap.String("remote", r.RemoteAddr))

		size := opts.OutboxSize
		if size <= 0 {
			size = defaultOutboxSize
		}
		out := make(chan []byte, size)
		if err := rl.Submit(ctx, relay.Join{ConnID: id, Outbox: out}); err != nil {
			_ = conn.Close(websocket.StatusTryAgainLater, "relay unavailable")
			return
		}
		// Whatever ends this connection, the relay hears about it exactly once.
		defer func() { _ = rl.Submit(context.Background(), relay.Leave{ConnID: id}) }()

		// Writer goroutine
		go func() {
			defer cancel()
			for payload := range out {
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			}
			// Outbox closed: the relay dropped us or is shutting down.
			_ = conn.Close(websocket.StatusGoingAway, "disconnected")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client closed connection")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			if err := rl.Submit(ctx, relay.FromClient{ConnID: id, Data: data}); err != nil {
				return
			}
		}
	}
}
