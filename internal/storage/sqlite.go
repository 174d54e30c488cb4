package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencitations/doi-corrector/internal/collect"
	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
)

// ErrEntityNotFound indicates an entity URI missing from the identifier store.
var ErrEntityNotFound = errors.New("entity not found")

// DB wraps a SQLite database connection. It holds the identifier store and the
// collection checkpoints of interrupted runs.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Create schema if needed
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Identifier store: mashed entities and their reviewed DOIs
		CREATE TABLE IF NOT EXISTS entities (
			uri TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			position INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS records (
			entity TEXT NOT NULL,
			doi TEXT NOT NULL,
			disposition TEXT NOT NULL,
			target TEXT,
			position INTEGER NOT NULL,
			PRIMARY KEY (entity, doi)
		);

		CREATE INDEX IF NOT EXISTS idx_records_doi ON records(doi);

		-- Checkpoints: edges collected so far and the cursor of each direction
		CREATE TABLE IF NOT EXISTS edges (
			entity TEXT NOT NULL,
			citing TEXT NOT NULL,
			cited TEXT NOT NULL,
			citing_doi TEXT,
			cited_doi TEXT,
			citation TEXT,
			source TEXT NOT NULL,
			discovered_at TEXT,
			PRIMARY KEY (entity, citing, cited)
		);

		CREATE TABLE IF NOT EXISTS cursors (
			entity TEXT NOT NULL,
			source TEXT NOT NULL,
			next_offset INTEGER NOT NULL,
			done INTEGER NOT NULL,
			pages INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (entity, source)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			summary_json TEXT
		);
	`

	_, err := db.Exec(schema)
	return err
}

// ImportRecords replaces the identifier store with the given entities.
func (d *DB) ImportRecords(mashed []entity.Mashed) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return 0, fmt.Errorf("clearing records table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return 0, fmt.Errorf("clearing entities table: %w", err)
	}

	entStmt, err := tx.Prepare(`INSERT INTO entities (uri, kind, position) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing entities insert: %w", err)
	}
	defer entStmt.Close()

	recStmt, err := tx.Prepare(`
		INSERT INTO records (entity, doi, disposition, target, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing records insert: %w", err)
	}
	defer recStmt.Close()

	count := 0
	for i, m := range mashed {
		if _, err := entStmt.Exec(m.Ref.URI, string(m.Ref.Kind), i); err != nil {
			return 0, fmt.Errorf("inserting entity %s: %w", m.Ref.URI, err)
		}
		for j, r := range m.Records {
			var target sql.NullString
			if r.Target != nil {
				target = sql.NullString{String: r.Target.URI, Valid: true}
			}
			if _, err := recStmt.Exec(m.Ref.URI, r.DOI, string(r.Disposition), target, j); err != nil {
				return 0, fmt.Errorf("inserting record %s/%s: %w", m.Ref.URI, r.DOI, err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return count, nil
}

// ListMashed returns every entity of the identifier store with its records,
// in import order.
func (d *DB) ListMashed() ([]entity.Mashed, error) {
	rows, err := d.db.Query(`
		SELECT e.uri, e.kind, r.doi, r.disposition, r.target
		FROM entities e
		LEFT JOIN records r ON r.entity = e.uri
		ORDER BY e.position, r.position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []entity.Mashed
	index := make(map[string]int)
	for rows.Next() {
		var uri, kind string
		var doiCol, disp, target sql.NullString
		if err := rows.Scan(&uri, &kind, &doiCol, &disp, &target); err != nil {
			return nil, err
		}
		i, ok := index[uri]
		if !ok {
			i = len(out)
			index[uri] = i
			out = append(out, entity.Mashed{Ref: entity.Ref{URI: uri, Kind: entity.Kind(kind)}})
		}
		if !doiCol.Valid {
			continue
		}
		rec := entity.DOIRecord{DOI: doiCol.String, Disposition: entity.Disposition(disp.String)}
		if target.Valid && target.String != "" {
			rec.Target = &entity.Ref{URI: target.String, Kind: entity.KindUnknown}
		}
		out[i].Records = append(out[i].Records, rec)
	}
	return out, rows.Err()
}

// GetMashed returns one entity with its records.
func (d *DB) GetMashed(uri string) (*entity.Mashed, error) {
	all, err := d.ListMashed()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Ref.URI == uri {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, uri)
}

// CountRecords returns the number of entities and DOI records in the store.
func (d *DB) CountRecords() (entities, records int, err error) {
	if err := d.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&entities); err != nil {
		return 0, 0, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&records); err != nil {
		return 0, 0, err
	}
	return entities, records, nil
}

// SaveEdges checkpoints collected edges for an entity. Existing rows are kept.
func (d *DB) SaveEdges(entityURI string, edges []edge.CitationEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning checkpoint: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO edges (entity, citing, cited, citing_doi, cited_doi, citation, source, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing edges insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		_, err := stmt.Exec(entityURI, e.Citing.URI, e.Cited.URI, e.Citing.DOI, e.Cited.DOI,
			e.Citation, string(e.Source), e.DiscoveredAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting edge: %w", err)
		}
	}
	return tx.Commit()
}

// LoadEdges returns the checkpointed edges of an entity, sorted by key.
func (d *DB) LoadEdges(entityURI string) ([]edge.CitationEdge, error) {
	rows, err := d.db.Query(`
		SELECT citing, cited, citing_doi, cited_doi, citation, source, discovered_at
		FROM edges
		WHERE entity = ?
		ORDER BY citing, cited
	`, entityURI)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var out []edge.CitationEdge
	for rows.Next() {
		var e edge.CitationEdge
		var citingDOI, citedDOI, citation, discovered sql.NullString
		var source string
		if err := rows.Scan(&e.Citing.URI, &e.Cited.URI, &citingDOI, &citedDOI, &citation, &source, &discovered); err != nil {
			return nil, err
		}
		e.Citing.DOI = citingDOI.String
		e.Cited.DOI = citedDOI.String
		e.Citation = citation.String
		e.Source = edge.Source(source)
		if discovered.Valid {
			if t, err := time.Parse(time.RFC3339Nano, discovered.String); err == nil {
				e.DiscoveredAt = t
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCursor records how far a direction got for an entity.
func (d *DB) SaveCursor(entityURI string, source edge.Source, c collect.Cursor) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO cursors (entity, source, next_offset, done, pages, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entityURI, string(source), c.Offset, c.Done, c.Pages, c.Error)
	return err
}

// LoadCursors returns the saved cursors of an entity, keyed by direction.
func (d *DB) LoadCursors(entityURI string) (map[edge.Source]collect.Cursor, error) {
	rows, err := d.db.Query(`
		SELECT source, next_offset, done, pages, error FROM cursors WHERE entity = ?
	`, entityURI)
	if err != nil {
		return nil, fmt.Errorf("querying cursors: %w", err)
	}
	defer rows.Close()

	out := make(map[edge.Source]collect.Cursor)
	for rows.Next() {
		var source string
		var c collect.Cursor
		var errText sql.NullString
		if err := rows.Scan(&source, &c.Offset, &c.Done, &c.Pages, &errText); err != nil {
			return nil, err
		}
		c.Error = errText.String
		out[edge.Source(source)] = c
	}
	return out, rows.Err()
}

// ClearCheckpoint drops the checkpointed edges and cursors of an entity.
func (d *DB) ClearCheckpoint(entityURI string) error {
	if _, err := d.db.Exec("DELETE FROM edges WHERE entity = ?", entityURI); err != nil {
		return fmt.Errorf("clearing edges: %w", err)
	}
	if _, err := d.db.Exec("DELETE FROM cursors WHERE entity = ?", entityURI); err != nil {
		return fmt.Errorf("clearing cursors: %w", err)
	}
	return nil
}

// Run is a recorded pipeline run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	SummaryJSON string
}

// StartRun records the start of a run.
func (d *DB) StartRun(id string, started time.Time) error {
	_, err := d.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, started.UTC().Format(time.RFC3339))
	return err
}

// FinishRun stores a run's end time and summary.
func (d *DB) FinishRun(id string, finished time.Time, summaryJSON string) error {
	_, err := d.db.Exec(`UPDATE runs SET finished_at = ?, summary_json = ? WHERE id = ?`,
		finished.UTC().Format(time.RFC3339), summaryJSON, id)
	return err
}

// DeleteRun forgets a run that never got past preflight.
func (d *DB) DeleteRun(id string) error {
	_, err := d.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

// LastRun returns the most recently started run, or nil if none.
func (d *DB) LastRun() (*Run, error) {
	return d.lastRun(`SELECT id, started_at, finished_at, summary_json FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT 1`)
}

// LastFinishedRun returns the most recent run that recorded a summary, or nil
// if none. Runs that were interrupted before finishing are skipped.
func (d *DB) LastFinishedRun() (*Run, error) {
	return d.lastRun(`SELECT id, started_at, finished_at, summary_json FROM runs
		WHERE summary_json IS NOT NULL AND summary_json != ''
		ORDER BY started_at DESC, rowid DESC LIMIT 1`)
}

func (d *DB) lastRun(query string) (*Run, error) {
	var r Run
	var started string
	var finished, summary sql.NullString
	err := d.db.QueryRow(query).Scan(&r.ID, &started, &finished, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	if finished.Valid {
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished.String)
	}
	r.SummaryJSON = summary.String
	return &r, nil
}
