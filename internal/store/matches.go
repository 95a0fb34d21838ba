package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/session"
)

// MatchStore persists finished matches, their participants and the last
// reported statistics per team.
type MatchStore struct {
	db *Database
}

// MatchRecord is one finished match ready for persistence.
type MatchRecord struct {
	GameID    string
	DemoName  string
	StartedAt time.Time
	EndedAt   time.Time
	Players   map[uint8]session.Player
	TeamStats map[uint8]protocol.TeamStatistics
}

// MatchSummary is one row of the match history listing.
type MatchSummary struct {
	ID          int64     `json:"id"`
	GameID      string    `json:"game_id"`
	DemoName    string    `json:"demo_name"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	PlayerCount int       `json:"player_count"`
}

// NewMatchStore opens the match database and runs migrations.
func NewMatchStore(dbPath string) (*MatchStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &MatchStore{db: database}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate match database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *MatchStore) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *MatchStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id TEXT NOT NULL DEFAULT '',
			demo_name TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS participants (
			match_id INTEGER NOT NULL,
			player_nb INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			disconnect_cause INTEGER NOT NULL,
			ready INTEGER NOT NULL DEFAULT 2,
			lost INTEGER NOT NULL DEFAULT 0,
			has_outcome INTEGER NOT NULL DEFAULT 0,
			winning_teams TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (match_id, player_nb),
			FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS team_stats (
			match_id INTEGER NOT NULL,
			team_nb INTEGER NOT NULL,
			frame INTEGER NOT NULL,
			stats TEXT NOT NULL,
			PRIMARY KEY (match_id, team_nb),
			FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_matches_game_id ON matches(game_id);
		CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches(ended_at);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("match database schema migrated")
	return nil
}

// RecordMatch persists one finished match atomically.
func (s *MatchStore) RecordMatch(rec MatchRecord) (int64, error) {
	var matchID int64

	err := s.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO matches (game_id, demo_name, started_at, ended_at) VALUES (?, ?, ?, ?)`,
			rec.GameID, rec.DemoName, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		matchID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read match id: %w", err)
		}

		for nb, p := range rec.Players {
			teams, err := json.Marshal(p.WinningAllyTeams)
			if err != nil {
				return fmt.Errorf("failed to encode winning teams: %w", err)
			}
			if _, err := tx.Exec(
				`INSERT INTO participants
					(match_id, player_nb, name, version, address, disconnect_cause, ready, lost, has_outcome, winning_teams)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				matchID, nb, p.Name, p.Version, p.Address,
				int(p.DisconnectCause), int(p.Ready), p.Lost, p.HasOutcome, string(teams),
			); err != nil {
				return fmt.Errorf("failed to insert participant %d: %w", nb, err)
			}
		}

		for teamNb, stats := range rec.TeamStats {
			encoded, err := json.Marshal(stats)
			if err != nil {
				return fmt.Errorf("failed to encode team stats: %w", err)
			}
			if _, err := tx.Exec(
				`INSERT INTO team_stats (match_id, team_nb, frame, stats) VALUES (?, ?, ?, ?)`,
				matchID, teamNb, stats.Frame, string(encoded),
			); err != nil {
				return fmt.Errorf("failed to insert team stats %d: %w", teamNb, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Int64("match_id", matchID).
		Str("game_id", rec.GameID).
		Int("players", len(rec.Players)).
		Msg("match recorded")
	return matchID, nil
}

// Recent returns the latest matches, newest first.
func (s *MatchStore) Recent(limit int) ([]MatchSummary, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT m.id, m.game_id, m.demo_name, m.started_at, m.ended_at,
			(SELECT COUNT(*) FROM participants p WHERE p.match_id = m.id)
		 FROM matches m ORDER BY m.ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.ID, &m.GameID, &m.DemoName, &m.StartedAt, &m.EndedAt, &m.PlayerCount); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Participants returns the stored players of one match.
func (s *MatchStore) Participants(matchID int64) ([]session.Player, error) {
	rows, err := s.db.Query(
		`SELECT player_nb, name, version, address, disconnect_cause, ready, lost, has_outcome, winning_teams
		 FROM participants WHERE match_id = ? ORDER BY player_nb`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var out []session.Player
	for rows.Next() {
		var p session.Player
		var cause, ready int
		var teams string
		if err := rows.Scan(&p.PlayerNb, &p.Name, &p.Version, &p.Address, &cause, &ready, &p.Lost, &p.HasOutcome, &teams); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		p.DisconnectCause = protocol.DisconnectCause(cause)
		p.Ready = protocol.ReadyState(ready)
		if err := json.Unmarshal([]byte(teams), &p.WinningAllyTeams); err != nil {
			return nil, fmt.Errorf("failed to decode winning teams: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TeamStats returns the stored statistics of one match, keyed by team.
func (s *MatchStore) TeamStats(matchID int64) (map[uint8]protocol.TeamStatistics, error) {
	rows, err := s.db.Query(
		`SELECT team_nb, stats FROM team_stats WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team stats: %w", err)
	}
	defer rows.Close()

	out := make(map[uint8]protocol.TeamStatistics)
	for rows.Next() {
		var teamNb uint8
		var encoded string
		if err := rows.Scan(&teamNb, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan team stats row: %w", err)
		}
		var stats protocol.TeamStatistics
		if err := json.Unmarshal([]byte(encoded), &stats); err != nil {
			return nil, fmt.Errorf("failed to decode team stats: %w", err)
		}
		out[teamNb] = stats
	}
	return out, rows.Err()
}
