package session

import (
	"encoding/json"
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrNotHost = errors.New("sender is not host")
var ErrWrongPhase = errors.New("command not allowed in current phase")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrDuplicatePlayer = errors.New("player already joined")

// ConnID identifies one transport connection for its lifetime.
type ConnID string

type Status string

const (
	StatusJoined Status = "joined"
	StatusAlive  Status = "alive"
	StatusDead   Status = "dead"
)

type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhasePlaying  Phase = "PLAYING"
	PhaseGameOver Phase = "GAME_OVER"
)

// Player is the relay's record of one connected client. IsHost and Status are
// owned by the session; the remaining fields are client-reported and relayed as-is.
type Player struct {
	ID     ConnID          `json:"id"`
	IsHost bool            `json:"is_host"`
	Status Status          `json:"status"`
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	Angle  *float64        `json:"angle,omitempty"`
	Color  *string         `json:"color,omitempty"`
	Custom json.RawMessage `json:"custom,omitempty"`
}

// HasPosition reports whether the player has reported both coordinates.
func (p Player) HasPosition() bool {
	return p.X != nil && p.Y != nil
}

// PlayerUpdate is the set of fields a client may change on its own record.
type PlayerUpdate struct {
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	Angle  *float64        `json:"angle,omitempty"`
	Color  *string         `json:"color,omitempty"`
	Custom json.RawMessage `json:"custom,omitempty"`
}

// Update is one per-tick sync from a client. Enemies and CR are only honored
// when the sender is host.
type Update struct {
	Player  PlayerUpdate
	Enemies json.RawMessage
	CR      *json.Number
}

type EventType string

const (
	EvtGameStarted     EventType = "GameStarted"
	EvtGameOver        EventType = "GameOver"
	EvtPlayerRevived   EventType = "PlayerRevived"
	EvtReturnedToLobby EventType = "ReturnedToLobby"
	EvtHostReassigned  EventType = "HostReassigned"
	EvtSessionReset    EventType = "SessionReset"
)

type Event struct {
	Type   EventType
	Target ConnID
}

var (
	emptyEnemies = json.RawMessage("[]")
	zeroCR       = json.Number("0")
)

// Session is the single shared match: roster, host, phase and the host's
// last reported enemy snapshot. It does no I/O and is not safe for
// concurrent use; the relay loop is its only writer.
type Session struct {
	phase   Phase
	hostID  ConnID
	players *orderedmap.OrderedMap[ConnID, *Player]
	enemies json.RawMessage
	cr      json.Number
}

func New() *Session {
	return &Session{
		phase:   PhaseWaiting,
		players: orderedmap.New[ConnID, *Player](),
		enemies: emptyEnemies,
		cr:      zeroCR,
	}
}

func (s *Session) Phase() Phase { return s.phase }

// HostID returns the current host, if any.
func (s *Session) HostID() (ConnID, bool) {
	return s.hostID, s.hostID != ""
}

func (s *Session) IsHost(id ConnID) bool {
	return s.hostID != "" && s.hostID == id
}

func (s *Session) Len() int { return s.players.Len() }

func (s *Session) Enemies() json.RawMessage { return s.enemies }

func (s *Session) CR() json.Number { return s.cr }

// Player returns a copy of the record for id.
func (s *Session) Player(id ConnID) (Player, bool) {
	p, ok := s.players.Get(id)
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Roster returns a copy of every record in join order.
func (s *Session) Roster() *orderedmap.OrderedMap[ConnID, Player] {
	out := orderedmap.New[ConnID, Player]()
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, *pair.Value)
	}
	return out
}

// Others returns every player except id that has reported a position.
func (s *Session) Others(id ConnID) *orderedmap.OrderedMap[ConnID, Player] {
	out := orderedmap.New[ConnID, Player]()
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == id || !pair.Value.HasPosition() {
			continue
		}
		out.Set(pair.Key, *pair.Value)
	}
	return out
}

// Join registers id. The first player in an empty session becomes host.
func (s *Session) Join(id ConnID) (Player, error) {
	if _, ok := s.players.Get(id); ok {
		return Player{}, ErrDuplicatePlayer
	}
	p := &Player{ID: id, Status: StatusJoined}
	if s.hostID == "" {
		s.hostID = id
		p.IsHost = true
	}
	s.players.Set(id, p)
	return *p, nil
}

// Leave removes id. If id was host, the earliest-joined remaining player takes
// over; if nobody remains the match is reset to WAITING.
func (s *Session) Leave(id ConnID) ([]Event, error) {
	if _, ok := s.players.Delete(id); !ok {
		return nil, ErrUnknownPlayer
	}
	if id != s.hostID {
		return nil, nil
	}

	oldest := s.players.Oldest()
	if oldest == nil {
		s.hostID = ""
		s.phase = PhaseWaiting
		s.clearSnapshot()
		return []Event{{Type: EvtSessionReset}}, nil
	}

	s.hostID = oldest.Key
	oldest.Value.IsHost = true
	return []Event{{Type: EvtHostReassigned, Target: oldest.Key}}, nil
}

// StartGame moves the lobby into play. Only the host may start, and only from WAITING.
func (s *Session) StartGame(id ConnID) ([]Event, error) {
	if !s.IsHost(id) {
		return nil, ErrNotHost
	}
	if s.phase != PhaseWaiting {
		return nil, ErrWrongPhase
	}

	s.phase = PhasePlaying
	s.clearSnapshot()
	s.setAll(StatusAlive)
	return []Event{{Type: EvtGameStarted}}, nil
}

// PlayerDied marks id dead and ends the match once every player is dead.
func (s *Session) PlayerDied(id ConnID) ([]Event, error) {
	if s.phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	p, ok := s.players.Get(id)
	if !ok {
		return nil, ErrUnknownPlayer
	}
	p.Status = StatusDead

	if !s.allDead() {
		return nil, nil
	}
	s.phase = PhaseGameOver
	return []Event{{Type: EvtGameOver}}, nil
}

// CastRevive brings every dead player back, one event per player in join order.
func (s *Session) CastRevive(id ConnID) ([]Event, error) {
	if s.phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	if _, ok := s.players.Get(id); !ok {
		return nil, ErrUnknownPlayer
	}

	var events []Event
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Status != StatusDead {
			continue
		}
		pair.Value.Status = StatusAlive
		events = append(events, Event{Type: EvtPlayerRevived, Target: pair.Key})
	}
	return events, nil
}

// ReturnLobby resets the match from any phase.
func (s *Session) ReturnLobby(id ConnID) ([]Event, error) {
	if _, ok := s.players.Get(id); !ok {
		return nil, ErrUnknownPlayer
	}

	s.phase = PhaseWaiting
	s.clearSnapshot()
	s.setAll(StatusJoined)
	return []Event{{Type: EvtReturnedToLobby}}, nil
}

// ApplyUpdate merges a per-tick sync into the sender's record. The shared
// enemy snapshot only ever comes from the host.
func (s *Session) ApplyUpdate(id ConnID, u Update) error {
	if s.phase != PhasePlaying {
		return ErrWrongPhase
	}
	p, ok := s.players.Get(id)
	if !ok {
		return ErrUnknownPlayer
	}
	p.merge(u.Player)

	if !s.IsHost(id) {
		return nil
	}
	if len(u.Enemies) > 0 {
		s.enemies = append(json.RawMessage(nil), u.Enemies...)
	}
	if u.CR != nil {
		s.cr = *u.CR
	}
	return nil
}

func (p *Player) merge(u PlayerUpdate) {
	if u.X != nil {
		p.X = u.X
	}
	if u.Y != nil {
		p.Y = u.Y
	}
	if u.Angle != nil {
		p.Angle = u.Angle
	}
	if u.Color != nil {
		p.Color = u.Color
	}
	if len(u.Custom) > 0 {
		p.Custom = append(json.RawMessage(nil), u.Custom...)
	}
}

func (s *Session) clearSnapshot() {
	s.enemies = emptyEnemies
	s.cr = zeroCR
}

func (s *Session) setAll(status Status) {
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Status = status
	}
}

func (s *Session) allDead() bool {
	if s.players.Len() == 0 {
		return false
	}
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Status != StatusDead {
			return false
		}
	}
	return true
}
