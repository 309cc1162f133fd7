package ledger

import (
	"database/sql"
	"fmt"

	"github.com/opeprep/opexam/internal/model"

	_ "modernc.org/sqlite"
)

// Ledger is the durable, append-only attempt history. The backing database
// is opened once per process and shared; there are no update or delete
// operations on attempts.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT NOT NULL,
		day TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		score REAL NOT NULL,
		correct INTEGER NOT NULL,
		wrong INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_user_timestamp ON attempts(user, timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append records one completed attempt and returns its id.
func (l *Ledger) Append(user string, a model.Attempt) (int64, error) {
	res, err := l.db.Exec(
		`INSERT INTO attempts (user, day, timestamp, score, correct, wrong)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user, a.Day, a.Timestamp, a.Score, a.Correct, a.Wrong,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Query returns a user's attempts ordered by timestamp ascending.
func (l *Ledger) Query(user string) ([]model.Attempt, error) {
	rows, err := l.db.Query(
		`SELECT id, user, day, timestamp, score, correct, wrong
		 FROM attempts WHERE user = ? ORDER BY timestamp`, user,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.User, &a.Day, &a.Timestamp, &a.Score, &a.Correct, &a.Wrong); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Count returns the number of recorded attempts for a user.
func (l *Ledger) Count(user string) (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE user = ?`, user).Scan(&count)
	return count, err
}
