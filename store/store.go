package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"PulseTrader/config"
	"PulseTrader/logger"
	"PulseTrader/state"
)

// Store persists the agent snapshot in SQLite under one opaque key. Writes
// are atomic; the single-writer agent loop is the only caller.
type Store struct {
	db *sql.DB
}

const stateKey = "state"

// Open opens (or creates) the database file and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes serialized at the driver level too.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Save serializes and writes the snapshot. Partial writes are impossible:
// the row is replaced in one statement.
func (s *Store) Save(st *state.AgentState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO agent_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, stateKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Load reads the snapshot, runs config migration and state repair, and
// returns a ready state. A missing row yields a fresh default state, which
// is written back immediately (first-boot semantics).
func (s *Store) Load() (*state.AgentState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM agent_state WHERE key = ?`, stateKey).Scan(&raw)
	if err == sql.ErrNoRows {
		st := state.New()
		logger.Info("💾 No stored state found, starting fresh")
		if err := s.Save(st); err != nil {
			return nil, err
		}
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	st := state.New()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		// A corrupt snapshot must not brick the agent: log and start fresh.
		logger.Errorf("💾 Stored state unreadable (%v), starting fresh", err)
		st = state.New()
		st.AppendLog("error", "state_corruption", fmt.Sprintf("snapshot unreadable: %v", err))
		return st, s.Save(st)
	}
	st.EnsureMaps()

	// Re-run the config through migration so fields added since the snapshot
	// was written pick up their defaults.
	var envelope struct {
		Config json.RawMessage `json:"config"`
	}
	_ = json.Unmarshal([]byte(raw), &envelope)
	cfg, notes := config.Migrate(envelope.Config)
	st.Config = cfg

	notes = append(notes, st.Repair()...)
	for _, note := range notes {
		logger.Warnf("💾 %s", note)
		st.AppendLog("warn", "state_migration", note)
	}
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
