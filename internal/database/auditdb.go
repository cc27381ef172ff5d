package database

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/piiscrub/internal/model"
)

const (
	// FileName is the name of the database file inside the database directory.
	FileName = "piiscrub.db"

	// KeyFileName is the name of the fingerprint key file next to the
	// database file.
	KeyFileName = "fingerprint.key"

	// keySize is the length of the fingerprint key in bytes.
	keySize = 32
)

var (
	// ErrNilReport is returned when SaveReport is called without a report.
	ErrNilReport = errors.New("report is nil")

	// ErrInvalidKey is returned when the fingerprint key file is unreadable
	// or has the wrong length.
	ErrInvalidKey = errors.New("invalid fingerprint key")
)

// AuditDB provides SQLite-based storage for the redaction audit log.
type AuditDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// key is the per-install HMAC key of entity fingerprints.
	key []byte
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AuditDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(ctx context.Context, dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("audit database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	key, err := loadKey(filepath.Join(dbDir, KeyFileName), opts.CreateIfNotExists)
	if err != nil {
		return nil, err
	}

	// mode=rw refuses to create a missing file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{
		db:     db,
		dbPath: dbPath,
		key:    key,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Path returns the path of the database file.
func (adb *AuditDB) Path() string {
	return adb.dbPath
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

func (adb *AuditDB) createTables(ctx context.Context) error {
	schema := `
	-- One row per workflow run
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		ticket_id INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		state TEXT NOT NULL,
		model TEXT,
		comment_count INTEGER DEFAULT 0,
		entity_count INTEGER DEFAULT 0,
		redacted INTEGER DEFAULT 0,
		not_found INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		cancelled INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_ticket ON runs(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	-- One row per issued redaction request. The entity text is stored
	-- only as a fingerprint.
	CREATE TABLE IF NOT EXISTS redactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		ticket_id INTEGER NOT NULL,
		comment_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		error TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redactions_run ON redactions(run_id);
	CREATE INDEX IF NOT EXISTS idx_redactions_ticket ON redactions(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_redactions_fingerprint ON redactions(fingerprint);
	`

	_, err := adb.db.ExecContext(ctx, schema)
	return err
}

// loadKey reads the fingerprint key at path. A missing key is generated
// when create is set.
func loadKey(path string, create bool) ([]byte, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && create {
		return createKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: %s holds %d bytes, expected %d", ErrInvalidKey, path, len(key), keySize)
	}
	return key, nil
}

// createKey writes a new random key to path. When another process created
// the file first, its key is used.
func createKey(path string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate fingerprint key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		return loadKey(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("create fingerprint key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write fingerprint key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write fingerprint key: %w", err)
	}
	return key, nil
}

// Fingerprint returns the hex HMAC-SHA3-256 of text keyed with the
// install's fingerprint key. Only holders of the key file can test a
// candidate text against a stored fingerprint.
func (adb *AuditDB) Fingerprint(text string) string {
	mac := hmac.New(func() hash.Hash { return sha3.New256() }, adb.key)
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// RunRecord is a stored workflow run.
type RunRecord struct {
	RunID        string
	Kind         model.RunKind
	TicketID     int64
	Timestamp    time.Time
	State        model.State
	Model        string
	CommentCount int
	EntityCount  int
	Redacted     int
	NotFound     int
	Failed       int
	Cancelled    bool
	Error        string
}

// Succeeded reports whether the run reached Done without an error.
func (r RunRecord) Succeeded() bool {
	return r.State == model.StateDone && r.Error == ""
}

// RedactionRecord is a stored redaction request.
type RedactionRecord struct {
	ID          int64
	RunID       string
	TicketID    int64
	CommentID   int64
	Outcome     model.Outcome
	Fingerprint string
	Error       string
	Timestamp   time.Time
}

// SaveReport stores a finished run and its redaction requests in one
// transaction. Saving the same run twice replaces the earlier rows.
func (adb *AuditDB) SaveReport(ctx context.Context, report *model.ScrubReport) (err error) {
	if report == nil {
		return ErrNilReport
	}

	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ts := formatTimestamp(report.DateProcessed)

	if _, err = tx.ExecContext(ctx, `DELETE FROM redactions WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear previous redactions: %w", err)
	}

	query := `
	INSERT INTO runs (run_id, kind, ticket_id, timestamp, state, model, comment_count,
		entity_count, redacted, not_found, failed, cancelled, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		state = excluded.state,
		model = excluded.model,
		comment_count = excluded.comment_count,
		entity_count = excluded.entity_count,
		redacted = excluded.redacted,
		not_found = excluded.not_found,
		failed = excluded.failed,
		cancelled = excluded.cancelled,
		error = excluded.error
	`
	_, err = tx.ExecContext(ctx, query,
		report.RunID,
		string(report.Kind),
		report.TicketID,
		ts,
		report.State.String(),
		report.Model,
		report.CommentCount,
		len(report.Entities),
		report.Count(model.OutcomeRedacted),
		report.Count(model.OutcomeNotFound),
		report.Count(model.OutcomeFailed),
		report.Cancelled,
		report.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, res := range report.Results {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO redactions (run_id, ticket_id, comment_id, outcome, fingerprint, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			report.RunID,
			res.Request.TicketID,
			res.Request.CommentID,
			string(res.Outcome),
			adb.Fingerprint(res.Request.Text),
			res.Error,
			ts,
		)
		if err != nil {
			return fmt.Errorf("failed to save redaction: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `run_id, kind, ticket_id, timestamp, state, model, comment_count,
	entity_count, redacted, not_found, failed, cancelled, error`

// GetRun retrieves a run by id. It returns nil, nil if the run is unknown.
func (adb *AuditDB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := adb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns stored runs, newest first. A ticketID of zero lists runs
// for every ticket. A limit of zero or less means no limit.
func (adb *AuditDB) ListRuns(ctx context.Context, ticketID int64, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := make([]any, 0, 2)

	if ticketID != 0 {
		query += " AND ticket_id = ?"
		args = append(args, ticketID)
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := adb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// ListTickets returns the ids of all tickets with at least one stored run.
func (adb *AuditDB) ListTickets(ctx context.Context) ([]int64, error) {
	rows, err := adb.db.QueryContext(ctx, `SELECT DISTINCT ticket_id FROM runs ORDER BY ticket_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ticket id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Redactions returns the redaction requests of a run in the order they were
// recorded.
func (adb *AuditDB) Redactions(ctx context.Context, runID string) ([]RedactionRecord, error) {
	query := `
	SELECT id, run_id, ticket_id, comment_id, outcome, fingerprint, error, timestamp
	FROM redactions
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := adb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redactions: %w", err)
	}
	defer rows.Close()

	var results []RedactionRecord
	for rows.Next() {
		var rec RedactionRecord
		var outcome, timestamp string
		var errMsg sql.NullString

		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.TicketID,
			&rec.CommentID,
			&outcome,
			&rec.Fingerprint,
			&errMsg,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan redaction: %w", err)
		}
		rec.Outcome = model.Outcome(outcome)
		rec.Error = errMsg.String
		rec.Timestamp = parseTimestamp(timestamp)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// WasRedacted reports whether text was already redacted from the comment
// by any stored run.
func (adb *AuditDB) WasRedacted(ctx context.Context, ticketID, commentID int64, text string) (bool, error) {
	query := `
	SELECT COUNT(*) FROM redactions
	WHERE ticket_id = ? AND comment_id = ? AND fingerprint = ? AND outcome = ?
	`

	var count int
	err := adb.db.QueryRowContext(ctx, query,
		ticketID, commentID, adb.Fingerprint(text), string(model.OutcomeRedacted),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check redaction: %w", err)
	}
	return count > 0, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var kind, timestamp, state string
	var modelName, errMsg sql.NullString

	if err := s.Scan(
		&rec.RunID,
		&kind,
		&rec.TicketID,
		&timestamp,
		&state,
		&modelName,
		&rec.CommentCount,
		&rec.EntityCount,
		&rec.Redacted,
		&rec.NotFound,
		&rec.Failed,
		&rec.Cancelled,
		&errMsg,
	); err != nil {
		return nil, err
	}

	rec.Kind = model.RunKind(kind)
	rec.Timestamp = parseTimestamp(timestamp)
	rec.State = model.ParseState(state)
	rec.Model = modelName.String
	rec.Error = errMsg.String
	return &rec, nil
}

// storedTimestampFormat sorts lexically in time order.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the timestamp formats that may be stored.
// More specific formats come first.
var timestampFormats = []string{
	storedTimestampFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
