package relay

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/hub"
	"github.com/DoyleJ11/coop-relay/internal/session"
	"github.com/DoyleJ11/coop-relay/internal/types"
)

// publish turns session events into client notices.
func (r *Relay) publish(events []session.Event) {
	for _, ev := range events {
		switch ev.Type {
		case session.EvtGameStarted:
			r.log.Info("game started")
			r.broadcast(types.NoticeMessage{Type: types.TypeTransitionToGame}, "")

		case session.EvtGameOver:
			r.log.Info("game over")
			r.broadcast(types.NoticeMessage{Type: types.TypeGameOver}, "")

		case session.EvtPlayerRevived:
			r.broadcast(types.PlayerRevivedMessage{Type: types.TypePlayerRevived, TargetID: ev.Target}, "")

		case session.EvtReturnedToLobby:
			r.log.Info("returned to lobby")
			r.broadcast(types.NoticeMessage{Type: types.TypeReturnLobby}, "")
			r.broadcastLobby()

		case session.EvtHostReassigned:
			r.log.Info("host reassigned", zap.String("conn_id", string(ev.Target)))
			// The new host needs the last snapshot to carry on reporting.
			r.broadcast(types.HostReassignedMessage{
				Type:      types.TypeHostReassigned,
				NewHostID: ev.Target,
				Players:   r.session.Roster(),
				Enemies:   r.session.Enemies(),
				CR:        r.session.CR(),
			}, "")

		case session.EvtSessionReset:
			r.log.Info("room empty, session reset")
		}
	}
}

func (r *Relay) broadcastLobby() {
	r.broadcast(types.LobbyUpdateMessage{Type: types.TypeLobbyUpdate, Players: r.session.Roster()}, "")
}

// sendState answers an update with everyone else's position and the shared snapshot.
func (r *Relay) sendState(id session.ConnID) {
	r.sendTo(id, types.StateMessage{
		Type:    types.TypeState,
		Players: r.session.Others(id),
		Enemies: r.session.Enemies(),
		CR:      r.session.CR(),
	})
}

func (r *Relay) broadcast(msg any, exclude session.ConnID) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode broadcast", zap.Error(err))
		return
	}
	for _, id := range r.conns.Broadcast(payload, exclude) {
		r.log.Warn("broadcast delivery failed, evicting", zap.String("conn_id", string(id)))
		r.evict = append(r.evict, id)
	}
}

func (r *Relay) sendTo(id session.ConnID, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode message", zap.String("conn_id", string(id)), zap.Error(err))
		return
	}
	err = r.conns.SendTo(id, payload)
	switch {
	case err == nil:
	case errors.Is(err, hub.ErrOutboxFull):
		r.log.Warn("send failed, evicting", zap.String("conn_id", string(id)), zap.Error(err))
		r.evict = append(r.evict, id)
	default:
		r.log.Debug("send to departed connection", zap.String("conn_id", string(id)), zap.Error(err))
	}
}
