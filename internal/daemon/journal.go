package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/dotsync/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    machine_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    ok INTEGER NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL -- UTC, fixed width so it sorts as text
);

CREATE INDEX IF NOT EXISTS idx_sync_journal_kind ON sync_journal(kind, id);
CREATE INDEX IF NOT EXISTS idx_sync_journal_created_at ON sync_journal(created_at);
`

const journalTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// JournalKind is the kind of attempt recorded in the journal.
type JournalKind string

const (
	JournalCommit        JournalKind = "commit"
	JournalCommitSkipped JournalKind = "commit_skipped"
	JournalPush          JournalKind = "push"
)

// JournalEntry is one commit or push attempt.
type JournalEntry struct {
	ID        int64
	RunID     string
	MachineID string
	Kind      JournalKind
	OK        bool
	Summary   string
	Error     string
	CreatedAt time.Time
}

// dbJournalEntry is used for scanning, created_at is stored as TEXT.
type dbJournalEntry struct {
	ID        int64  `db:"id"`
	RunID     string `db:"run_id"`
	MachineID string `db:"machine_id"`
	Kind      string `db:"kind"`
	OK        bool   `db:"ok"`
	Summary   string `db:"summary"`
	Error     string `db:"error"`
	CreatedAt string `db:"created_at"`
}

// Journal is a durable history of commit and push attempts backed by SQLite.
//
// A nil *Journal is valid and records nothing. Write failures are logged
// and never returned to the sync path.
type Journal struct {
	db        *sqlx.DB
	dbPath    string
	runID     string
	machineID string
	now       func() time.Time
}

// NewJournal prepares a journal at dbPath. Empty runID and machineID are
// filled in with a fresh uuid and this machine's id.
func NewJournal(dbPath, runID, machineID string) *Journal {
	if runID == "" {
		runID = uuid.NewString()
	}
	if machineID == "" {
		machineID = MachineID()
	}
	return &Journal{
		dbPath:    dbPath,
		runID:     runID,
		machineID: machineID,
		now:       time.Now,
	}
}

// MachineID returns an app specific hash of the machine id, or the hostname
// when the platform does not expose one.
func MachineID() string {
	if id, err := machineid.ProtectedID("dotsync"); err == nil {
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

func (j *Journal) Open() error {
	if j.db != nil {
		return fmt.Errorf("journal already open")
	}

	conn, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1), db.WithMaxIdleConns(1))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("initialize journal schema: %w", err)
	}

	j.db = conn
	return nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	slog.Debug("journal closed")
	return nil
}

// Record appends an attempt. cause may be nil.
func (j *Journal) Record(kind JournalKind, summary string, cause error) {
	if j == nil || j.db == nil {
		return
	}

	row := dbJournalEntry{
		RunID:     j.runID,
		MachineID: j.machineID,
		Kind:      string(kind),
		OK:        cause == nil,
		Summary:   summary,
		CreatedAt: j.now().UTC().Format(journalTimeFormat),
	}
	if cause != nil {
		row.Error = cause.Error()
	}

	query := `INSERT INTO sync_journal (run_id, machine_id, kind, ok, summary, error, created_at)
	          VALUES (:run_id, :machine_id, :kind, :ok, :summary, :error, :created_at)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		slog.Warn("journal record failed", "kind", kind, "error", err)
	}
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]JournalEntry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}

	var rows []dbJournalEntry
	err := j.db.Select(&rows, `SELECT id, run_id, machine_id, kind, ok, summary, error, created_at
	                           FROM sync_journal ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent journal entries: %w", err)
	}

	entries := make([]JournalEntry, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(journalTimeFormat, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of entry %d: %w", row.ID, err)
		}
		entries = append(entries, JournalEntry{
			ID:        row.ID,
			RunID:     row.RunID,
			MachineID: row.MachineID,
			Kind:      JournalKind(row.Kind),
			OK:        row.OK,
			Summary:   row.Summary,
			Error:     row.Error,
			CreatedAt: createdAt,
		})
	}
	return entries, nil
}

// ConsecutivePushFailures counts failed push attempts since the last
// successful one.
func (j *Journal) ConsecutivePushFailures() (int, error) {
	if j == nil || j.db == nil {
		return 0, nil
	}

	var n int
	err := j.db.Get(&n, `SELECT COUNT(*) FROM sync_journal
	                     WHERE kind = ? AND ok = 0
	                     AND id > COALESCE((SELECT MAX(id) FROM sync_journal WHERE kind = ? AND ok = 1), 0)`,
		string(JournalPush), string(JournalPush))
	if err != nil {
		return 0, fmt.Errorf("count push failures: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than maxAge and returns how many were removed.
func (j *Journal) Prune(maxAge time.Duration) (int64, error) {
	if j == nil || j.db == nil {
		return 0, nil
	}

	cutoff := j.now().Add(-maxAge).UTC().Format(journalTimeFormat)
	res, err := j.db.Exec(`DELETE FROM sync_journal WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}
