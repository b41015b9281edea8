// Package types holds the JSON wire contract shared with browser clients.
// Type strings and field names must stay byte-for-byte compatible with the
// existing client.
package types

import (
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/DoyleJ11/coop-relay/internal/session"
)

var ErrBadJSON = errors.New("bad json")
var ErrMissingType = errors.New("missing type")
var ErrUnknownType = errors.New("unknown type")
var ErrMissingField = errors.New("missing field")

// Client -> server
const (
	TypeStartGame   = "start_game"
	TypePlayerDied  = "player_died"
	TypeCastRevive  = "cast_revive"
	TypeDamageEnemy = "damage_enemy"
	TypeReturnLobby = "return_lobby"
	TypeUpdate      = "update"
)

// Server -> client
const (
	TypeInit             = "init"
	TypeLobbyUpdate      = "lobby_update"
	TypeTransitionToGame = "transition_to_game"
	TypeGameOver         = "game_over"
	TypePlayerRevived    = "player_revived"
	TypeState            = "state"
	TypeHostReassigned   = "host_reassigned"
)

// ClientMessage is a parsed inbound message. Only the fields relevant to Type
// are populated.
type ClientMessage struct {
	Type string

	// damage_enemy; relayed verbatim
	EnemyID json.RawMessage
	Damage  json.RawMessage

	// update
	Update session.Update
}

type rawClientMessage struct {
	Type    string                `json:"type"`
	ID      json.RawMessage       `json:"id,omitempty"`
	Damage  json.RawMessage       `json:"damage,omitempty"`
	Player  *session.PlayerUpdate `json:"player,omitempty"`
	Enemies json.RawMessage       `json:"enemies,omitempty"`
	CR      *json.Number          `json:"cr,omitempty"`
}

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var raw rawClientMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if raw.Type == "" {
		return ClientMessage{}, ErrMissingType
	}

	msg := ClientMessage{Type: raw.Type}
	switch raw.Type {
	case TypeStartGame, TypePlayerDied, TypeCastRevive, TypeReturnLobby:
		return msg, nil

	case TypeDamageEnemy:
		if isAbsent(raw.ID) {
			return ClientMessage{}, fmt.Errorf("%w: damage_enemy.id", ErrMissingField)
		}
		if isAbsent(raw.Damage) {
			return ClientMessage{}, fmt.Errorf("%w: damage_enemy.damage", ErrMissingField)
		}
		msg.EnemyID = raw.ID
		msg.Damage = raw.Damage
		return msg, nil

	case TypeUpdate:
		if raw.Player == nil {
			return ClientMessage{}, fmt.Errorf("%w: update.player", ErrMissingField)
		}
		msg.Update = session.Update{Player: *raw.Player, CR: raw.CR}
		if !isAbsent(raw.Enemies) {
			msg.Update.Enemies = raw.Enemies
		}
		return msg, nil

	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
}

func isAbsent(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// Roster is the players map as sent on the wire, keyed by client id in join order.
type Roster = *orderedmap.OrderedMap[session.ConnID, session.Player]

type InitMessage struct {
	Type      string         `json:"type"`
	ClientID  session.ConnID `json:"client_id"`
	IsHost    bool           `json:"is_host"`
	GameState session.Phase  `json:"game_state"`
}

type LobbyUpdateMessage struct {
	Type    string `json:"type"`
	Players Roster `json:"players"`
}

// NoticeMessage carries no payload: transition_to_game, game_over, return_lobby.
type NoticeMessage struct {
	Type string `json:"type"`
}

type PlayerRevivedMessage struct {
	Type     string         `json:"type"`
	TargetID session.ConnID `json:"target_id"`
}

type StateMessage struct {
	Type    string          `json:"type"`
	Players Roster          `json:"players"`
	Enemies json.RawMessage `json:"enemies"`
	CR      json.Number     `json:"cr"`
}

type DamageEnemyMessage struct {
	Type           string          `json:"type"`
	ID             json.RawMessage `json:"id"`
	Damage         json.RawMessage `json:"damage"`
	SourceClientID session.ConnID  `json:"source_client_id"`
}

type HostReassignedMessage struct {
	Type      string          `json:"type"`
	NewHostID session.ConnID  `json:"new_host_id"`
	Players   Roster          `json:"players"`
	Enemies   json.RawMessage `json:"enemies"`
	CR        json.Number     `json:"cr"`
}
