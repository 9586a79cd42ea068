package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codegraph/internal/graph"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// fixed width so saved_at sorts as text
const savedAtLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	// relations carry no foreign key: targets may dangle by design of the
	// same-file assumed ids
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			labels JSON,
			name TEXT,
			file_path TEXT,
			start_line INTEGER,
			end_line INTEGER,
			properties JSON,
			snippet TEXT,
			run_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS relations (
			key TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			properties JSON,
			run_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			saved_at TEXT,
			entities INTEGER,
			relations INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(file_path);`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- CodeGraphStore Implementation ---

func (s *SQLiteStore) SaveGraph(ctx context.Context, g *graph.Graph, runID string) error {
	if g == nil {
		g = graph.NewGraph()
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Save Entities
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, kind, labels, name, file_path, start_line, end_line, properties, snippet, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			labels=excluded.labels,
			name=excluded.name,
			file_path=excluded.file_path,
			start_line=excluded.start_line,
			end_line=excluded.end_line,
			properties=excluded.properties,
			snippet=excluded.snippet,
			run_id=excluded.run_id
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range g.Entities() {
		labels, err := json.Marshal(e.Labels())
		if err != nil {
			return err
		}
		props, err := marshalProps(e.Properties)
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), labels, e.Name, e.FilePath, e.StartLine, e.EndLine, props, e.Snippet, runID); err != nil {
			return err
		}
	}

	// 2. Save Relations
	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relations (key, source_id, target_id, kind, properties, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			properties=excluded.properties,
			run_id=excluded.run_id
	`)
	if err != nil {
		return err
	}
	defer relStmt.Close()

	for _, r := range g.Relations() {
		props, err := marshalProps(r.Properties)
		if err != nil {
			return fmt.Errorf("relation %s: %w", r.Key(), err)
		}
		if _, err := relStmt.ExecContext(ctx, r.Key(), r.SourceID, r.TargetID, string(r.Kind), props, runID); err != nil {
			return err
		}
	}

	// 3. Drop what this run did not write
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE run_id IS NOT ?`, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE run_id IS NOT ?`, runID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, saved_at, entities, relations) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET saved_at=excluded.saved_at, entities=excluded.entities, relations=excluded.relations
	`, runID, time.Now().UTC().Format(savedAtLayout), g.EntityCount(), g.RelationCount()); err != nil {
		return err
	}

	return tx.Commit()
}

func marshalProps(props map[string]any) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	return json.Marshal(props)
}

const entityColumns = "id, kind, name, file_path, start_line, end_line, properties, snippet"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*graph.Entity, error) {
	var e graph.Entity
	var kind string
	var props []byte
	var name, filePath, snippet sql.NullString
	var endLine sql.NullInt64
	if err := row.Scan(&e.ID, &kind, &name, &filePath, &e.StartLine, &endLine, &props, &snippet); err != nil {
		return nil, err
	}
	e.Kind = graph.EntityKind(kind)
	e.Name = name.String
	e.FilePath = filePath.String
	e.EndLine = int(endLine.Int64)
	e.Snippet = snippet.String
	if len(props) > 0 {
		if err := json.Unmarshal(props, &e.Properties); err != nil {
			return nil, fmt.Errorf("entity %s: bad properties: %w", e.ID, err)
		}
	}
	return &e, nil
}

func (s *SQLiteStore) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.NewGraph()

	// 1. Load Entities
	rows, err := s.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities")
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		g.AddEntity(e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Load Relations
	relRows, err := s.db.QueryContext(ctx, "SELECT source_id, target_id, kind, properties FROM relations")
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var r graph.Relation
		var kind string
		var props []byte
		if err := relRows.Scan(&r.SourceID, &r.TargetID, &kind, &props); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		r.Kind = graph.RelationKind(kind)
		if len(props) > 0 {
			if err := json.Unmarshal(props, &r.Properties); err != nil {
				return nil, fmt.Errorf("relation %s: bad properties: %w", r.Key(), err)
			}
		}
		g.AddRelation(r)
	}
	if err := relRows.Err(); err != nil {
		return nil, err
	}

	return g, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

func (s *SQLiteStore) FindEntitiesByFile(ctx context.Context, filePath string) ([]*graph.Entity, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE file_path = ? ORDER BY start_line, id", filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*graph.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		EntitiesByKind:  map[string]int{},
		RelationsByKind: map[string]int{},
	}
	if err := s.countBy(ctx, "entities", st.EntitiesByKind, &st.Entities); err != nil {
		return st, err
	}
	if err := s.countBy(ctx, "relations", st.RelationsByKind, &st.Relations); err != nil {
		return st, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT run_id, saved_at FROM runs ORDER BY saved_at DESC, rowid DESC LIMIT 1")
	var runID, savedAt sql.NullString
	switch err := row.Scan(&runID, &savedAt); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, err
	default:
		st.LastRunID = runID.String
		st.LastRunAt = savedAt.String
	}
	return st, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, table string, byKind map[string]int, total *int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM "+table+" GROUP BY kind")
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return err
		}
		byKind[kind] = n
		*total += n
	}
	return rows.Err()
}
