// Package store persists orchestrator state across restarts. It is a
// snapshot store: the logical schema of agents and tasks survives a process
// restart exactly; eviction and archival policy live outside the core.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ade/warden/internal/models"
)

// Store is a SQLite-backed persistence layer
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open opens (or creates) the database at path and applies migrations
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot atomically replaces the persisted state with the given
// agents and tasks
func (s *Store) SaveSnapshot(agents []models.Agent, tasks []models.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agents`); err != nil {
		return fmt.Errorf("clear agents: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	for _, a := range agents {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode agent %s: %w", a.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO agents (name, data) VALUES (?, ?)`, a.Name, string(data)); err != nil {
			return fmt.Errorf("insert agent %s: %w", a.Name, err)
		}
	}
	for _, t := range tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", t.ID, err)
		}
		if _, err := tx.Exec(`INSERT INTO tasks (id, data) VALUES (?, ?)`, t.ID, string(data)); err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot reads the persisted agents and tasks. Corrupted rows are a
// fatal condition; callers abort startup rather than run with partial state.
func (s *Store) LoadSnapshot() ([]models.Agent, []models.Task, error) {
	var agents []models.Agent
	rows, err := s.db.Query(`SELECT name, data FROM agents`)
	if err != nil {
		return nil, nil, fmt.Errorf("load agents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, nil, fmt.Errorf("scan agent: %w", err)
		}
		var a models.Agent
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, nil, fmt.Errorf("corrupt agent record %q: %w", name, err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate agents: %w", err)
	}

	var tasks []models.Task
	trows, err := s.db.Query(`SELECT id, data FROM tasks`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var id, data string
		if err := trows.Scan(&id, &data); err != nil {
			return nil, nil, fmt.Errorf("scan task: %w", err)
		}
		var t models.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, nil, fmt.Errorf("corrupt task record %q: %w", id, err)
		}
		tasks = append(tasks, t)
	}
	if err := trows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return agents, tasks, nil
}
