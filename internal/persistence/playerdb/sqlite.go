// Package playerdb persists player identity, position, and inventory in a
// local sqlite database. Trade history is intentionally not stored here.
package playerdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxeltrade.ai/internal/player"
)

type Store struct {
	db *sql.DB

	ch   chan player.Row
	wg   sync.WaitGroup
	once sync.Once

	// sendMu serializes enqueues against Close so a save racing shutdown
	// can never hit a closed channel.
	sendMu sync.Mutex
	closed atomic.Bool
}

func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		// Saves are last-write-wins; a dropped save is replaced by the
		// next periodic flush or the shutdown flush.
		ch: make(chan player.Row, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the steady trickle of per-player upserts.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			inventory_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_players_name ON players(name);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SavePlayer enqueues an upsert. It never blocks the caller; under
// backpressure the row is dropped in favor of a later save.
func (s *Store) SavePlayer(row player.Row) {
	if s == nil || row.ID == "" {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- row:
	default:
	}
}

// SaveAll enqueues every row (used by the periodic flush).
func (s *Store) SaveAll(rows []player.Row) {
	for _, row := range rows {
		s.SavePlayer(row)
	}
}

func (s *Store) loop() {
	for row := range s.ch {
		s.upsert(row)
	}
}

func (s *Store) upsert(row player.Row) {
	invJSON, err := json.Marshal(row.Inventory)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`INSERT INTO players (id, name, x, y, z, inventory_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			x = excluded.x,
			y = excluded.y,
			z = excluded.z,
			inventory_json = excluded.inventory_json,
			updated_at = excluded.updated_at;`,
		row.ID, row.Name, row.Pos[0], row.Pos[1], row.Pos[2],
		string(invJSON), time.Now().UTC().Format(time.RFC3339Nano))
}

// LoadAll reads every persisted player, synchronously (startup only).
func (s *Store) LoadAll() ([]player.Row, error) {
	rows, err := s.db.Query(`SELECT id, name, x, y, z, inventory_json FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]player.Row, 0, 64)
	for rows.Next() {
		var r player.Row
		var invJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.Pos[0], &r.Pos[1], &r.Pos[2], &invJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(invJSON), &r.Inventory); err != nil {
			return nil, fmt.Errorf("player %s inventory: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
