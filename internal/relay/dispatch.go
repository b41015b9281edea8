package relay

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-relay/internal/session"
	"github.com/DoyleJ11/coop-relay/internal/types"
)

// dispatch parses one inbound frame and applies it. Malformed frames and
// commands rejected by the session are dropped without touching anyone else.
func (r *Relay) dispatch(id session.ConnID, data []byte) {
	if !r.conns.Has(id) {
		r.log.Debug("frame from unregistered connection", zap.String("conn_id", string(id)))
		return
	}

	msg, err := types.ParseClientMessage(data)
	if err != nil {
		r.log.Warn("dropping malformed message", zap.String("conn_id", string(id)), zap.Error(err))
		return
	}

	var events []session.Event
	switch msg.Type {
	case types.TypeStartGame:
		events, err = r.session.StartGame(id)

	case types.TypePlayerDied:
		events, err = r.session.PlayerDied(id)

	case types.TypeCastRevive:
		events, err = r.session.CastRevive(id)

	case types.TypeReturnLobby:
		events, err = r.session.ReturnLobby(id)

	case types.TypeDamageEnemy:
		err = r.relayDamage(id, msg)

	case types.TypeUpdate:
		if err = r.session.ApplyUpdate(id, msg.Update); err == nil {
			r.sendState(id)
		}
	}

	if err != nil {
		r.log.Debug("ignoring command",
			zap.String("conn_id", string(id)),
			zap.String("type", msg.Type),
			zap.String("phase", string(r.session.Phase())),
			zap.Error(err),
		)
		return
	}
	r.publish(events)
}

// relayDamage forwards a client's hit claim to everyone else. The relay does
// not check the target or the amount; the host applies it.
func (r *Relay) relayDamage(id session.ConnID, msg types.ClientMessage) error {
	if r.session.Phase() != session.PhasePlaying {
		return session.ErrWrongPhase
	}
	r.broadcast(types.DamageEnemyMessage{
		Type:           types.TypeDamageEnemy,
		ID:             msg.EnemyID,
		Damage:         msg.Damage,
		SourceClientID: id,
	}, id)
	return nil
}
