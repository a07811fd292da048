package db

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var database *sql.DB

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
)

// Reading is one summary emitted by a heart-rate monitor.
type Reading struct {
	ID         string    `json:"_id"`
	MaxBPM     float64   `json:"maxBPM"`
	AvgBPM     float64   `json:"avgBPM"`
	MinBPM     float64   `json:"minBPM"`
	HeartifyID string    `json:"heartifyID,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	HeartifyID   string    `json:"heartifyID"`
	CreatedAt    time.Time `json:"createdAt"`
}

// InitDB initializes the SQLite database
func InitDB(path string) error {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	var err error
	database, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	// sqlite allows one writer; an in-memory database is also per connection.
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS heart_rate_readings (
        id TEXT PRIMARY KEY,
        max_bpm REAL NOT NULL,
        avg_bpm REAL NOT NULL,
        min_bpm REAL NOT NULL,
        heartify_id TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_readings_created ON heart_rate_readings(created_at);
    CREATE INDEX IF NOT EXISTS idx_readings_device ON heart_rate_readings(heartify_id, created_at);
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        password_hash TEXT NOT NULL,
        heartify_id TEXT NOT NULL UNIQUE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	_, err = database.Exec(query)
	return err
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// Ping reports whether the database is reachable.
func Ping() error {
	if database == nil {
		return ErrNotInitialized
	}
	return database.Ping()
}

// InsertReading stores r, filling in its ID and CreatedAt when empty.
func InsertReading(r *Reading) error {
	if database == nil {
		return ErrNotInitialized
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	_, err := database.Exec(`
        INSERT INTO heart_rate_readings (id, max_bpm, avg_bpm, min_bpm, heartify_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.MaxBPM, r.AvgBPM, r.MinBPM, nullString(r.HeartifyID), r.CreatedAt)
	return err
}

// LatestReading returns the newest reading, optionally for one device.
func LatestReading(heartifyID string) (*Reading, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	query := `
        SELECT id, max_bpm, avg_bpm, min_bpm, heartify_id, created_at
        FROM heart_rate_readings`
	var args []any
	if heartifyID != "" {
		query += ` WHERE heartify_id = ?`
		args = append(args, heartifyID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	r, err := scanReading(database.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ReadingsBetween returns readings with from <= created_at < to, oldest first.
func ReadingsBetween(from, to time.Time) ([]Reading, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT id, max_bpm, avg_bpm, min_bpm, heartify_id, created_at
        FROM heart_rate_readings
        WHERE created_at >= ? AND created_at < ?
        ORDER BY created_at ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *r)
	}
	return readings, rows.Err()
}

// DeleteReadingsBefore removes readings older than cutoff and reports how
// many were deleted.
func DeleteReadingsBefore(cutoff time.Time) (int64, error) {
	if database == nil {
		return 0, ErrNotInitialized
	}
	res, err := database.Exec(`DELETE FROM heart_rate_readings WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateUser stores u with a fresh ID. A taken email or heartify ID
// yields ErrDuplicate.
func CreateUser(u *User) error {
	if database == nil {
		return ErrNotInitialized
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	_, err := database.Exec(`
        INSERT INTO users (id, username, email, password_hash, heartify_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.HeartifyID, u.CreatedAt)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicate
	}
	return err
}

func FindUserByID(id string) (*User, error) {
	return findUser(`id = ?`, id)
}

func FindUserByEmail(email string) (*User, error) {
	return findUser(`email = ?`, email)
}

func FindUserByHeartifyID(heartifyID string) (*User, error) {
	return findUser(`heartify_id = ?`, heartifyID)
}

func findUser(where string, arg string) (*User, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	var u User
	err := database.QueryRow(`
        SELECT id, username, email, password_hash, heartify_id, created_at
        FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.HeartifyID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*Reading, error) {
	var r Reading
	var heartifyID sql.NullString
	if err := row.Scan(&r.ID, &r.MaxBPM, &r.AvgBPM, &r.MinBPM, &heartifyID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.HeartifyID = heartifyID.String
	return &r, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
