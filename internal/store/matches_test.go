package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/session"
)

func newTestStore(t *testing.T) *MatchStore {
	t.Helper()
	s, err := NewMatchStore(filepath.Join(t.TempDir(), "hostlink.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadBackMatch(t *testing.T) {
	s := newTestStore(t)

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := MatchRecord{
		GameID:    "0123456789abcdef0123456789abcdef",
		DemoName:  "demos/match.sdfz",
		StartedAt: started,
		EndedAt:   started.Add(40 * time.Minute),
		Players: map[uint8]session.Player{
			0: {
				PlayerNb:         0,
				Name:             "Alice",
				Version:          "105.1.1",
				Address:          "192.168.1.10:54321",
				DisconnectCause:  protocol.CauseLeft,
				Ready:            protocol.Ready,
				HasOutcome:       true,
				WinningAllyTeams: []uint8{1},
			},
			1: {
				PlayerNb:        1,
				Name:            "Bob",
				DisconnectCause: protocol.CauseConnectionLost,
				Ready:           protocol.NotReady,
				Lost:            true,
			},
		},
		TeamStats: map[uint8]protocol.TeamStatistics{
			1: {Frame: 72000, MetalProduced: 5120.5, UnitsKilled: 42},
		},
	}

	matchID, err := s.RecordMatch(rec)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	recent, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d rows, want 1", len(recent))
	}
	if recent[0].GameID != rec.GameID || recent[0].PlayerCount != 2 {
		t.Fatalf("summary = %#v", recent[0])
	}

	players, err := s.Participants(matchID)
	if err != nil {
		t.Fatalf("participants failed: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("participants = %d, want 2", len(players))
	}
	alice := players[0]
	if alice.Name != "Alice" || !alice.HasOutcome || len(alice.WinningAllyTeams) != 1 || alice.WinningAllyTeams[0] != 1 {
		t.Fatalf("alice = %#v", alice)
	}
	if alice.Ready != protocol.Ready || alice.DisconnectCause != protocol.CauseLeft {
		t.Fatalf("alice state not preserved: %#v", alice)
	}
	if bob := players[1]; !bob.Lost {
		t.Fatalf("bob = %#v", bob)
	}

	stats, err := s.TeamStats(matchID)
	if err != nil {
		t.Fatalf("team stats failed: %v", err)
	}
	got, ok := stats[1]
	if !ok || got.Frame != 72000 || got.UnitsKilled != 42 {
		t.Fatalf("stats = %#v", stats)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordMatch(MatchRecord{
			GameID:    string(rune('a' + i)),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt:   base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
		})
		if err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d rows, want 2", len(recent))
	}
	if recent[0].GameID != "c" || recent[1].GameID != "b" {
		t.Fatalf("order = %q, %q", recent[0].GameID, recent[1].GameID)
	}
}
