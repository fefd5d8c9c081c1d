// Package storage is the sheet service's durable state: projects,
// columns, rows, cell values, and style overrides in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Current schema
const currentSchemaVersion = 1

// Storage provides durable storage for sheet projects.
// Uses SQLite with WAL mode for concurrent read access.
type Storage struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// Future migrations slot in here, gated on version.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// CreateProject creates a project with its initial column set. The
// first column is the identity column.
func (s *Storage) CreateProject(ctx context.Context, project string, columns []string) error {
	if project == "" {
		return &sheet.ValidationError{Message: "empty project id"}
	}
	if len(columns) == 0 {
		return &sheet.ValidationError{Message: "project needs at least the identity column"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &sheet.PersistenceError{Op: "create project", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, project)
	if err != nil {
		return &sheet.PersistenceError{Op: "create project", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &sheet.InvariantViolation{Message: fmt.Sprintf("project %q already exists", project)}
	}

	for i, name := range columns {
		if sheet.NormalizeHeader(name) == "" {
			return &sheet.ValidationError{Message: "empty column name"}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO columns (project_id, name, position) VALUES (?, ?, ?)
		`, project, name, i); err != nil {
			return &sheet.PersistenceError{Op: "create project columns", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &sheet.PersistenceError{Op: "create project", Err: err}
	}
	return nil
}

// Projects returns all project ids.
func (s *Storage) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, &sheet.PersistenceError{Op: "list projects", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &sheet.PersistenceError{Op: "list projects", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// projectExists checks a project id inside a transaction-free read.
func (s *Storage) projectExists(ctx context.Context, project string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, project).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &sheet.PersistenceError{Op: "check project", Err: err}
	}
	return true, nil
}

// Columns returns the project's column names in canonical order.
func (s *Storage) Columns(ctx context.Context, project string) ([]string, error) {
	ok, err := s.projectExists(ctx, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &sheet.NotFoundError{Target: "project", Key: project}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM columns WHERE project_id = ? ORDER BY position
	`, project)
	if err != nil {
		return nil, &sheet.PersistenceError{Op: "read columns", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &sheet.PersistenceError{Op: "read columns", Err: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Rows returns all rows of a project with their cell values, in
// canonical order. The identity field is populated for every row.
func (s *Storage) Rows(ctx context.Context, project string) ([]sheet.RowRecord, error) {
	columns, err := s.Columns(ctx, project)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}
	identityColumn := columns[0]

	rowRows, err := s.db.QueryContext(ctx, `
		SELECT identity FROM rows WHERE project_id = ? ORDER BY position
	`, project)
	if err != nil {
		return nil, &sheet.PersistenceError{Op: "read rows", Err: err}
	}
	defer rowRows.Close()

	var records []sheet.RowRecord
	index := make(map[string]int)
	for rowRows.Next() {
		var identity string
		if err := rowRows.Scan(&identity); err != nil {
			return nil, &sheet.PersistenceError{Op: "read rows", Err: err}
		}
		fields := make(map[string]string, len(columns))
		for _, c := range columns {
			fields[c] = ""
		}
		fields[identityColumn] = identity
		index[identity] = len(records)
		records = append(records, sheet.RowRecord{Identity: identity, Fields: fields})
	}
	if err := rowRows.Err(); err != nil {
		return nil, &sheet.PersistenceError{Op: "read rows", Err: err}
	}

	cellRows, err := s.db.QueryContext(ctx, `
		SELECT identity, field, value FROM cells WHERE project_id = ?
	`, project)
	if err != nil {
		return nil, &sheet.PersistenceError{Op: "read cells", Err: err}
	}
	defer cellRows.Close()

	for cellRows.Next() {
		var identity, field, value string
		if err := cellRows.Scan(&identity, &field, &value); err != nil {
			return nil, &sheet.PersistenceError{Op: "read cells", Err: err}
		}
		if i, ok := index[identity]; ok && field != identityColumn {
			if _, known := records[i].Fields[field]; known {
				records[i].Fields[field] = value
			}
		}
	}
	return records, cellRows.Err()
}

// AddColumn appends a column to the project.
func (s *Storage) AddColumn(ctx context.Context, project, name string) error {
	if sheet.NormalizeHeader(name) == "" {
		return &sheet.ValidationError{Message: "empty column name"}
	}
	ok, err := s.projectExists(ctx, project)
	if err != nil {
		return err
	}
	if !ok {
		return &sheet.NotFoundError{Target: "project", Key: project}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO columns (project_id, name, position)
		SELECT ?, ?, COALESCE(MAX(position), -1) + 1
		FROM columns WHERE project_id = ?
		ON CONFLICT(project_id, name) DO NOTHING
	`, project, name, project)
	if err != nil {
		return &sheet.PersistenceError{Op: "add column", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &sheet.InvariantViolation{Message: fmt.Sprintf("column %q already exists", name)}
	}
	return nil
}

// RemoveColumn removes a column and its cell values. The identity
// column (position 0) cannot be removed.
func (s *Storage) RemoveColumn(ctx context.Context, project, name string) error {
	ok, err := s.projectExists(ctx, project)
	if err != nil {
		return err
	}
	if !ok {
		return &sheet.NotFoundError{Target: "project", Key: project}
	}

	var position int
	err = s.db.QueryRowContext(ctx, `
		SELECT position FROM columns WHERE project_id = ? AND name = ?
	`, project, name).Scan(&position)
	if err == sql.ErrNoRows {
		return &sheet.NotFoundError{Target: "column", Key: name}
	}
	if err != nil {
		return &sheet.PersistenceError{Op: "remove column", Err: err}
	}
	if position == 0 {
		return &sheet.InvariantViolation{Message: "identity column cannot be removed"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &sheet.PersistenceError{Op: "remove column", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM columns WHERE project_id = ? AND name = ?
	`, project, name); err != nil {
		return &sheet.PersistenceError{Op: "remove column", Err: err}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cells WHERE project_id = ? AND field = ?
	`, project, name); err != nil {
		return &sheet.PersistenceError{Op: "remove column cells", Err: err}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM styles WHERE project_id = ? AND field = ?
	`, project, name); err != nil {
		return &sheet.PersistenceError{Op: "remove column styles", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &sheet.PersistenceError{Op: "remove column", Err: err}
	}
	return nil
}

// AddRow appends a row with the given identity and optional initial
// cell values. Unknown fields in the initial values are rejected.
func (s *Storage) AddRow(ctx context.Context, project, identity string, fields map[string]string) error {
	if identity == "" {
		return &sheet.ValidationError{Message: "empty row identity"}
	}
	columns, err := s.Columns(ctx, project)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	for field := range fields {
		if !known[field] {
			return &sheet.NotFoundError{Target: "column", Key: field}
		}
		if field == columns[0] {
			return &sheet.InvariantViolation{Message: "identity column is read-only"}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &sheet.PersistenceError{Op: "add row", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO rows (project_id, identity, position)
		SELECT ?, ?, COALESCE(MAX(position), -1) + 1
		FROM rows WHERE project_id = ?
		ON CONFLICT(project_id, identity) DO NOTHING
	`, project, identity, project)
	if err != nil {
		return &sheet.PersistenceError{Op: "add row", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &sheet.InvariantViolation{Message: fmt.Sprintf("row %q already exists", identity)}
	}

	for field, value := range fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cells (project_id, identity, field, value) VALUES (?, ?, ?, ?)
		`, project, identity, field, value); err != nil {
			return &sheet.PersistenceError{Op: "add row cells", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &sheet.PersistenceError{Op: "add row", Err: err}
	}
	return nil
}

// RemoveRows deletes the listed rows and reports how many existed.
// Unknown identities are skipped.
func (s *Storage) RemoveRows(ctx context.Context, project string, identities []string) (int, error) {
	if len(identities) == 0 {
		return 0, &sheet.ValidationError{Message: "no rows selected"}
	}
	ok, err := s.projectExists(ctx, project)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &sheet.NotFoundError{Target: "project", Key: project}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &sheet.PersistenceError{Op: "remove rows", Err: err}
	}
	defer tx.Rollback()

	removed := 0
	for _, identity := range identities {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM rows WHERE project_id = ? AND identity = ?
		`, project, identity)
		if err != nil {
			return 0, &sheet.PersistenceError{Op: "remove rows", Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &sheet.PersistenceError{Op: "remove rows", Err: err}
	}
	return removed, nil
}

// SetCell updates one cell and returns the previous value. The row and
// column must exist; the identity column is read-only.
func (s *Storage) SetCell(ctx context.Context, project, identity, field, value string) (string, error) {
	columns, err := s.Columns(ctx, project)
	if err != nil {
		return "", err
	}
	colKnown := false
	for _, c := range columns {
		if c == field {
			colKnown = true
			break
		}
	}
	if !colKnown {
		return "", &sheet.NotFoundError{Target: "column", Key: field}
	}
	if field == columns[0] {
		return "", &sheet.InvariantViolation{Message: "identity column is read-only"}
	}

	var one int
	err = s.db.QueryRowContext(ctx, `
		SELECT 1 FROM rows WHERE project_id = ? AND identity = ?
	`, project, identity).Scan(&one)
	if err == sql.ErrNoRows {
		return "", &sheet.NotFoundError{Target: "row", Key: identity}
	}
	if err != nil {
		return "", &sheet.PersistenceError{Op: "set cell", Err: err}
	}

	var old string
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM cells WHERE project_id = ? AND identity = ? AND field = ?
	`, project, identity, field).Scan(&old)
	if err != nil && err != sql.ErrNoRows {
		return "", &sheet.PersistenceError{Op: "set cell", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cells (project_id, identity, field, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, identity, field) DO UPDATE SET value = excluded.value
	`, project, identity, field, value); err != nil {
		return "", &sheet.PersistenceError{Op: "set cell", Err: err}
	}
	return old, nil
}

// SetStyle replaces the style override of one cell.
func (s *Storage) SetStyle(ctx context.Context, project, identity, field string, style sheet.StylePayload) error {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM rows WHERE project_id = ? AND identity = ?
	`, project, identity).Scan(&one)
	if err == sql.ErrNoRows {
		ok, perr := s.projectExists(ctx, project)
		if perr != nil {
			return perr
		}
		if !ok {
			return &sheet.NotFoundError{Target: "project", Key: project}
		}
		return &sheet.NotFoundError{Target: "row", Key: identity}
	}
	if err != nil {
		return &sheet.PersistenceError{Op: "set style", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO styles (project_id, identity, field, color, background, bold, italic)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, identity, field) DO UPDATE SET
			color = excluded.color,
			background = excluded.background,
			bold = excluded.bold,
			italic = excluded.italic
	`, project, identity, field, style.Color, style.Background, boolInt(style.Bold), boolInt(style.Italic)); err != nil {
		return &sheet.PersistenceError{Op: "set style", Err: err}
	}
	return nil
}

// Styles returns all style overrides of a project keyed by cell.
func (s *Storage) Styles(ctx context.Context, project string) (map[sheet.CellKey]sheet.StylePayload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, field, color, background, bold, italic
		FROM styles WHERE project_id = ?
	`, project)
	if err != nil {
		return nil, &sheet.PersistenceError{Op: "read styles", Err: err}
	}
	defer rows.Close()

	out := make(map[sheet.CellKey]sheet.StylePayload)
	for rows.Next() {
		var identity, field string
		var style sheet.StylePayload
		var bold, italic int
		if err := rows.Scan(&identity, &field, &style.Color, &style.Background, &bold, &italic); err != nil {
			return nil, &sheet.PersistenceError{Op: "read styles", Err: err}
		}
		style.Bold = bold != 0
		style.Italic = italic != 0
		out[sheet.CellKey{Identity: identity, Header: field}] = style
	}
	return out, rows.Err()
}

// NextSeq increments and returns the project's push stream sequence.
func (s *Storage) NextSeq(ctx context.Context, project string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET stream_seq = stream_seq + 1 WHERE id = ?
	`, project)
	if err != nil {
		return 0, &sheet.PersistenceError{Op: "next seq", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, &sheet.NotFoundError{Target: "project", Key: project}
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT stream_seq FROM projects WHERE id = ?
	`, project).Scan(&seq); err != nil {
		return 0, &sheet.PersistenceError{Op: "next seq", Err: err}
	}
	return seq, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
