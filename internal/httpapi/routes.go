package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/relay"
	"github.com/DoyleJ11/coop-relay/internal/ws"
)

// SetupRoutes builds the auxiliary HTTP router: discovery endpoints plus the
// game's static files. It never touches the relay.
func SetupRoutes(info ServerInfo, staticDir string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/api/ip", IPInfo(info))
	r.Get("/api/qr", QRCode(info, log))
	r.Get("/healthz", Healthz)

	// Anything else is a file from the game bundle.
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	return r
}

// SetupRelayRoutes builds the router for the relay port. Clients connect to
// the bare host:port, so the upgrade lives at "/".
func SetupRelayRoutes(rl *relay.Relay, opts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	upgrade := ws.Handler(rl, opts, log)
	r.Get("/", upgrade)
	r.Get("/ws", upgrade)
	r.Get("/healthz", RelayHealth(rl))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
