package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ko-stant/room-layout-sync/internal/codec"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS project_updates (
	project    TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project, seq)
);

CREATE TABLE IF NOT EXISTS project_snapshots (
	project     TEXT    PRIMARY KEY,
	data        BLOB    NOT NULL,
	digest      TEXT    NOT NULL,
	through_seq INTEGER NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) AppendUpdate(ctx context.Context, project string, update []byte) (int64, error) {
	blob, err := codec.PackFast(update)
	if err != nil {
		return 0, fmt.Errorf("pack update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// sequence numbers keep growing past compaction
	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM project_updates WHERE project = ?), 0),
			COALESCE((SELECT through_seq FROM project_snapshots WHERE project = ?), 0)
		) + 1`, project, project).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO project_updates (project, seq, data) VALUES (?, ?, ?)`,
		project, seq, blob); err != nil {
		return 0, fmt.Errorf("insert update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

func (s *SQLite) LoadProject(ctx context.Context, project string) (Project, error) {
	var p Project

	var blob []byte
	var digest string
	var through int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, digest, through_seq FROM project_snapshots WHERE project = ?`, project).
		Scan(&blob, &digest, &through)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Project{}, fmt.Errorf("load snapshot: %w", err)
	default:
		if p.Snapshot, err = openSnapshot(blob, digest); err != nil {
			return Project{}, fmt.Errorf("project %s: %w", project, err)
		}
		p.LastSeq = through
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data FROM project_updates WHERE project = ? AND seq > ? ORDER BY seq`, project, through)
	if err != nil {
		return Project{}, fmt.Errorf("load updates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return Project{}, fmt.Errorf("scan update: %w", err)
		}
		update, err := codec.Unpack(data)
		if err != nil {
			return Project{}, fmt.Errorf("update %d: %w", seq, err)
		}
		p.Updates = append(p.Updates, update)
		p.LastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return Project{}, fmt.Errorf("load updates: %w", err)
	}
	return p, nil
}

func (s *SQLite) SaveSnapshot(ctx context.Context, project string, snapshot []byte, throughSeq int64) error {
	blob, digest, err := sealSnapshot(snapshot)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_snapshots (project, data, digest, through_seq, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			data = excluded.data,
			digest = excluded.digest,
			through_seq = excluded.through_seq,
			updated_at = excluded.updated_at`,
		project, blob, digest, throughSeq, time.Now().UTC()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM project_updates WHERE project = ? AND seq <= ?`, project, throughSeq); err != nil {
		return fmt.Errorf("truncate updates: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project FROM project_snapshots
		UNION
		SELECT DISTINCT project FROM project_updates
		ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
