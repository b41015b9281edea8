package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/relay"
)

const qrSize = 256

// ServerInfo is what a browser needs to find the relay from the page it loaded.
type ServerInfo struct {
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	WSPort int    `json:"ws_port"`
}

// JoinURL is the address other players open to reach the game page.
func (i ServerInfo) JoinURL() string {
	return fmt.Sprintf("http://%s:%d", i.IP, i.Port)
}

func IPInfo(info ServerInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(info)
	}
}

// QRCode renders the join URL as a PNG so phones on the same network can scan in.
func QRCode(info ServerInfo, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(info.JoinURL(), qrcode.Medium, qrSize)
		if err != nil {
			log.Error("qr generation failed", zap.Error(err))
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RelayHealth reports the live session summary; 503 once the relay has stopped.
func RelayHealth(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		v, err := rl.State(ctx)
		if err != nil {
			http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Phase      string `json:"phase"`
			Players    int    `json:"players"`
			NumClients int    `json:"num_clients"`
		}{
			Phase:      string(v.Phase),
			Players:    v.Players.Len(),
			NumClients: v.NumClients,
		})
	}
}
