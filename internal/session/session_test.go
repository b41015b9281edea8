package session

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants asserts the roster/host/phase relationships that must hold
// after every operation.
func checkInvariants(t *testing.T, s *Session) {
	t.Helper()

	hosts := 0
	for pair := s.players.Oldest(); pair != nil; pair = pair.Next() {
		require.Equal(t, pair.Key, pair.Value.ID, "record keyed under wrong id")
		if pair.Value.IsHost {
			hosts++
			require.Equal(t, s.hostID, pair.Key, "host flag disagrees with host id")
		}
	}

	hostID, ok := s.HostID()
	if s.Len() == 0 {
		require.Zero(t, hosts)
		require.False(t, ok, "empty session must have no host")
		require.Equal(t, PhaseWaiting, s.Phase())
		return
	}
	require.Equal(t, 1, hosts, "exactly one host expected")
	require.True(t, ok)
	_, present := s.Player(hostID)
	require.True(t, present, "host id must be a registered player")
}

func joinAll(t *testing.T, s *Session, ids ...ConnID) {
	t.Helper()
	for _, id := range ids {
		_, err := s.Join(id)
		require.NoError(t, err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestJoin_FirstPlayerBecomesHost(t *testing.T) {
	s := New()

	a, err := s.Join("a")
	require.NoError(t, err)
	b, err := s.Join("b")
	require.NoError(t, err)

	assert.True(t, a.IsHost)
	assert.False(t, b.IsHost)
	assert.Equal(t, StatusJoined, a.Status)
	assert.Equal(t, StatusJoined, b.Status)
	checkInvariants(t, s)
}

func TestJoin_DuplicateRejected(t *testing.T) {
	s := New()
	joinAll(t, s, "a")

	_, err := s.Join("a")
	require.ErrorIs(t, err, ErrDuplicatePlayer)
	assert.Equal(t, 1, s.Len())
}

func TestLeave_HostMigratesToEarliestJoined(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b", "c")

	events, err := s.Leave("a")
	require.NoError(t, err)
	require.Equal(t, []Event{{Type: EvtHostReassigned, Target: "b"}}, events)

	host, ok := s.HostID()
	require.True(t, ok)
	assert.Equal(t, ConnID("b"), host)
	checkInvariants(t, s)

	events, err = s.Leave("b")
	require.NoError(t, err)
	require.Equal(t, []Event{{Type: EvtHostReassigned, Target: "c"}}, events)
	checkInvariants(t, s)
}

func TestLeave_NonHostKeepsHost(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b")

	events, err := s.Leave("b")
	require.NoError(t, err)
	assert.Empty(t, events)

	host, _ := s.HostID()
	assert.Equal(t, ConnID("a"), host)
	checkInvariants(t, s)
}

func TestLeave_LastPlayerResetsSession(t *testing.T) {
	for _, phase := range []Phase{PhasePlaying, PhaseGameOver} {
		t.Run(string(phase), func(t *testing.T) {
			s := New()
			joinAll(t, s, "a")
			_, err := s.StartGame("a")
			require.NoError(t, err)
			require.NoError(t, s.ApplyUpdate("a", Update{
				Enemies: json.RawMessage(`[{"id":1}]`),
				CR:      ptr(json.Number("4")),
			}))
			if phase == PhaseGameOver {
				_, err = s.PlayerDied("a")
				require.NoError(t, err)
				require.Equal(t, PhaseGameOver, s.Phase())
			}

			events, err := s.Leave("a")
			require.NoError(t, err)
			assert.Equal(t, []Event{{Type: EvtSessionReset}}, events)
			assert.Equal(t, PhaseWaiting, s.Phase())
			assert.JSONEq(t, `[]`, string(s.Enemies()))
			assert.Equal(t, json.Number("0"), s.CR())
			checkInvariants(t, s)
		})
	}
}

func TestLeave_UnknownPlayer(t *testing.T) {
	s := New()
	_, err := s.Leave("ghost")
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestRandomJoinLeave_InvariantsHold(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()
	var live []ConnID
	next := 0

	for i := 0; i < 500; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			id := ConnID(fmt.Sprintf("c%d", next))
			next++
			_, err := s.Join(id)
			require.NoError(t, err)
			live = append(live, id)
		} else {
			idx := rng.Intn(len(live))
			wasHost := s.IsHost(live[idx])
			_, err := s.Leave(live[idx])
			require.NoError(t, err)
			live = append(live[:idx], live[idx+1:]...)
			if wasHost && len(live) > 0 {
				host, _ := s.HostID()
				require.Equal(t, live[0], host, "host must be earliest-joined survivor")
			}
		}
		checkInvariants(t, s)
		require.Equal(t, len(live), s.Len())
	}
}

func TestStartGame_Guards(t *testing.T) {
	cases := []struct {
		name    string
		sender  ConnID
		setup   func(t *testing.T, s *Session)
		wantErr error
	}{
		{
			name:    "non-host cannot start",
			sender:  "b",
			wantErr: ErrNotHost,
		},
		{
			name:    "unknown sender cannot start",
			sender:  "z",
			wantErr: ErrNotHost,
		},
		{
			name:   "cannot start while already playing",
			sender: "a",
			setup: func(t *testing.T, s *Session) {
				_, err := s.StartGame("a")
				require.NoError(t, err)
			},
			wantErr: ErrWrongPhase,
		},
		{
			name:   "host starts from lobby",
			sender: "a",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			joinAll(t, s, "a", "b")
			if tc.setup != nil {
				tc.setup(t, s)
			}
			before := s.Phase()

			events, err := s.StartGame(tc.sender)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, events)
				assert.Equal(t, before, s.Phase())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []Event{{Type: EvtGameStarted}}, events)
			assert.Equal(t, PhasePlaying, s.Phase())
			for _, id := range []ConnID{"a", "b"} {
				p, _ := s.Player(id)
				assert.Equal(t, StatusAlive, p.Status)
			}
		})
	}
}

func TestStartGame_ClearsSnapshot(t *testing.T) {
	s := New()
	joinAll(t, s, "a")
	_, err := s.StartGame("a")
	require.NoError(t, err)
	require.NoError(t, s.ApplyUpdate("a", Update{Enemies: json.RawMessage(`[1,2]`), CR: ptr(json.Number("9"))}))
	_, err = s.ReturnLobby("a")
	require.NoError(t, err)

	_, err = s.StartGame("a")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(s.Enemies()))
	assert.Equal(t, json.Number("0"), s.CR())
}

func TestPlayerDied_GameOverOnlyWhenAllDead(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b", "c")
	_, err := s.StartGame("a")
	require.NoError(t, err)

	events, err := s.PlayerDied("b")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, PhasePlaying, s.Phase())

	events, err = s.PlayerDied("a")
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = s.PlayerDied("c")
	require.NoError(t, err)
	assert.Equal(t, []Event{{Type: EvtGameOver}}, events)
	assert.Equal(t, PhaseGameOver, s.Phase())

	events, err = s.PlayerDied("c")
	require.ErrorIs(t, err, ErrWrongPhase)
	assert.Empty(t, events)
}

func TestPlayerDied_OutsidePlayingIgnored(t *testing.T) {
	s := New()
	joinAll(t, s, "a")

	_, err := s.PlayerDied("a")
	require.ErrorIs(t, err, ErrWrongPhase)
	p, _ := s.Player("a")
	assert.Equal(t, StatusJoined, p.Status)
}

func TestPlayerDied_JoinedLatecomerBlocksGameOver(t *testing.T) {
	s := New()
	joinAll(t, s, "a")
	_, err := s.StartGame("a")
	require.NoError(t, err)
	joinAll(t, s, "late")

	events, err := s.PlayerDied("a")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, PhasePlaying, s.Phase())
}

func TestCastRevive_RevivesEveryDeadPlayerInJoinOrder(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b", "c", "d")
	_, err := s.StartGame("a")
	require.NoError(t, err)
	for _, id := range []ConnID{"d", "b"} {
		_, err := s.PlayerDied(id)
		require.NoError(t, err)
	}

	events, err := s.CastRevive("a")
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Type: EvtPlayerRevived, Target: "b"},
		{Type: EvtPlayerRevived, Target: "d"},
	}, events)
	for _, id := range []ConnID{"a", "b", "c", "d"} {
		p, _ := s.Player(id)
		assert.Equal(t, StatusAlive, p.Status, id)
	}

	events, err = s.CastRevive("a")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCastRevive_OutsidePlayingIgnored(t *testing.T) {
	s := New()
	joinAll(t, s, "a")
	_, err := s.CastRevive("a")
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestReturnLobby_ResetsFromAnyPhase(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b")
	_, err := s.StartGame("a")
	require.NoError(t, err)
	require.NoError(t, s.ApplyUpdate("a", Update{Enemies: json.RawMessage(`[1]`), CR: ptr(json.Number("3"))}))
	for _, id := range []ConnID{"a", "b"} {
		_, err := s.PlayerDied(id)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseGameOver, s.Phase())

	events, err := s.ReturnLobby("b")
	require.NoError(t, err)
	assert.Equal(t, []Event{{Type: EvtReturnedToLobby}}, events)
	assert.Equal(t, PhaseWaiting, s.Phase())
	assert.JSONEq(t, `[]`, string(s.Enemies()))
	assert.Equal(t, json.Number("0"), s.CR())
	for _, id := range []ConnID{"a", "b"} {
		p, _ := s.Player(id)
		assert.Equal(t, StatusJoined, p.Status)
	}
	checkInvariants(t, s)
}

func TestApplyUpdate_HostOwnsSnapshot(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b")
	_, err := s.StartGame("a")
	require.NoError(t, err)

	require.NoError(t, s.ApplyUpdate("a", Update{
		Player:  PlayerUpdate{X: ptr(1.5), Y: ptr(2.0)},
		Enemies: json.RawMessage(`[{"id":"e1"},{"id":"e2"}]`),
		CR:      ptr(json.Number("7")),
	}))
	require.NoError(t, s.ApplyUpdate("b", Update{
		Player:  PlayerUpdate{X: ptr(9.0), Y: ptr(9.0), Color: ptr("#fff")},
		Enemies: json.RawMessage(`[]`),
		CR:      ptr(json.Number("99")),
	}))

	assert.JSONEq(t, `[{"id":"e1"},{"id":"e2"}]`, string(s.Enemies()))
	assert.Equal(t, json.Number("7"), s.CR())

	b, _ := s.Player("b")
	require.NotNil(t, b.Color)
	assert.Equal(t, "#fff", *b.Color)
	assert.Equal(t, 9.0, *b.X)
}

func TestApplyUpdate_PartialMergeKeepsOtherFields(t *testing.T) {
	s := New()
	joinAll(t, s, "a")
	_, err := s.StartGame("a")
	require.NoError(t, err)

	require.NoError(t, s.ApplyUpdate("a", Update{Player: PlayerUpdate{X: ptr(1.0), Y: ptr(2.0), Color: ptr("red")}}))
	require.NoError(t, s.ApplyUpdate("a", Update{Player: PlayerUpdate{X: ptr(5.0)}, Enemies: json.RawMessage(`[3]`)}))
	require.NoError(t, s.ApplyUpdate("a", Update{Player: PlayerUpdate{Y: ptr(6.0)}}))

	a, _ := s.Player("a")
	assert.Equal(t, 5.0, *a.X)
	assert.Equal(t, 6.0, *a.Y)
	assert.Equal(t, "red", *a.Color)
	assert.True(t, a.IsHost)
	assert.Equal(t, StatusAlive, a.Status)
	assert.JSONEq(t, `[3]`, string(s.Enemies()), "absent enemies must not clear the snapshot")
}

func TestApplyUpdate_OutsidePlayingIgnored(t *testing.T) {
	s := New()
	joinAll(t, s, "a")

	err := s.ApplyUpdate("a", Update{Player: PlayerUpdate{X: ptr(1.0), Y: ptr(1.0)}})
	require.ErrorIs(t, err, ErrWrongPhase)
	a, _ := s.Player("a")
	assert.False(t, a.HasPosition())
}

func TestOthers_OnlyPositionedPlayersExceptSelf(t *testing.T) {
	s := New()
	joinAll(t, s, "a", "b", "c")
	_, err := s.StartGame("a")
	require.NoError(t, err)
	require.NoError(t, s.ApplyUpdate("a", Update{Player: PlayerUpdate{X: ptr(1.0), Y: ptr(1.0)}}))
	require.NoError(t, s.ApplyUpdate("b", Update{Player: PlayerUpdate{X: ptr(2.0)}}))

	others := s.Others("c")
	assert.Equal(t, 1, others.Len())
	_, ok := others.Get("a")
	assert.True(t, ok)

	assert.Zero(t, s.Others("a").Len())
}

func TestRoster_MarshalsInJoinOrder(t *testing.T) {
	s := New()
	joinAll(t, s, "zed", "amy", "kim")

	data, err := json.Marshal(s.Roster())
	require.NoError(t, err)
	assert.Equal(t,
		`{"zed":{"id":"zed","is_host":true,"status":"joined"},`+
			`"amy":{"id":"amy","is_host":false,"status":"joined"},`+
			`"kim":{"id":"kim","is_host":false,"status":"joined"}}`,
		string(data))
}

func TestRoster_IsACopy(t *testing.T) {
	s := New()
	joinAll(t, s, "a")

	r := s.Roster()
	p, _ := r.Get("a")
	p.Status = StatusDead
	r.Set("a", p)

	orig, _ := s.Player("a")
	assert.Equal(t, StatusJoined, orig.Status)
}
