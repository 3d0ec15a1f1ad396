package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dateLayout    = "2006-01-02"
	deviceIDKey   = "device_id"
	OutcomeCredit = "credited"
	OutcomeMissed = "abandoned"
	OutcomeFailed = "failed"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS device_profile (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
		`CREATE TABLE IF NOT EXISTS observed_accounts (
        platform_user_id INTEGER PRIMARY KEY,
        display_name TEXT,
        first_seen_at TEXT NOT NULL,
        last_seen_at TEXT NOT NULL
    )`,
		`CREATE TABLE IF NOT EXISTS session_log (
        session_id TEXT PRIMARY KEY,
        task_id INTEGER NOT NULL,
        day TEXT NOT NULL,
        outcome TEXT NOT NULL
    )`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return s.ensureColumns()
}

func (s *Store) ensureColumns() error {
	columns := map[string]bool{}
	rows, err := s.db.Query(`PRAGMA table_info(session_log)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	alterStatements := []string{}
	addColumn := func(name, definition string) {
		if !columns[name] {
			alterStatements = append(alterStatements, definition)
		}
	}

	addColumn("detail", `ALTER TABLE session_log ADD COLUMN detail TEXT`)
	addColumn("balance", `ALTER TABLE session_log ADD COLUMN balance TEXT`)
	addColumn("updated_at", `ALTER TABLE session_log ADD COLUMN updated_at TEXT`)

	for _, stmt := range alterStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DeviceID() (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM device_profile WHERE key = ?`, deviceIDKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value = strings.TrimSpace(value)
	return value, value != "", nil
}

func (s *Store) SaveDeviceID(id string) error {
	_, err := s.db.Exec(`INSERT INTO device_profile(key, value, updated_at)
    VALUES(?, ?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		deviceIDKey, strings.TrimSpace(id), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ObserveAccount records that platformUserID used this profile and returns
// how many distinct platform accounts have been seen here.
func (s *Store) ObserveAccount(platformUserID int64, displayName string, at time.Time) (int, error) {
	now := at.UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`INSERT INTO observed_accounts(platform_user_id, display_name, first_seen_at, last_seen_at)
    VALUES(?, ?, ?, ?)
    ON CONFLICT(platform_user_id) DO UPDATE SET display_name = excluded.display_name, last_seen_at = excluded.last_seen_at`,
		platformUserID, displayName, now, now)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM observed_accounts`).Scan(&count)
	return count, err
}

func (s *Store) RecordSession(sessionID string, taskID int, outcome, detail, balance string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO session_log(session_id, task_id, day, outcome, detail, balance, updated_at)
    VALUES(?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(session_id) DO UPDATE SET
        outcome = CASE WHEN session_log.outcome = 'credited' THEN session_log.outcome ELSE excluded.outcome END,
        detail = excluded.detail,
        balance = COALESCE(NULLIF(excluded.balance, ''), session_log.balance),
        updated_at = excluded.updated_at`,
		strings.TrimSpace(sessionID), taskID, at.UTC().Format(dateLayout), outcome, detail, balance, at.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) DailyOutcomes(day time.Time) (credited, abandoned, failed int, err error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM session_log WHERE day = ? GROUP BY outcome`, day.UTC().Format(dateLayout))
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return 0, 0, 0, err
		}
		switch outcome {
		case OutcomeCredit:
			credited = count
		case OutcomeMissed:
			abandoned = count
		case OutcomeFailed:
			failed = count
		}
	}
	return credited, abandoned, failed, rows.Err()
}
