package tokens

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps tokens in a SQLite database. Only a SHA-256 digest of
// each value is stored.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the token database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL so the CLI can read while the server holds the file.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS auth_tokens (
		id         TEXT PRIMARY KEY,
		value_hash TEXT NOT NULL UNIQUE,
		app_id     TEXT NOT NULL,
		issued_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create auth_tokens: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Issue implements Store.
func (s *SQLiteStore) Issue(appID string) (Token, error) {
	tok := newToken(appID, s.now())
	_, err := s.db.Exec(`INSERT INTO auth_tokens (id, value_hash, app_id, issued_at) VALUES (?, ?, ?, ?)`,
		tok.ID, hashValue(tok.Value), tok.AppID, tok.IssuedAt.UnixMilli())
	if err != nil {
		return Token{}, fmt.Errorf("insert token: %w", err)
	}

	slog.Info("tokens.issued", "id", tok.ID, "app", appID, "backend", "sqlite")
	return tok, nil
}

// Validate implements Store.
func (s *SQLiteStore) Validate(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	var appID string
	err := s.db.QueryRow(`SELECT app_id FROM auth_tokens WHERE value_hash = ?`, hashValue(value)).Scan(&appID)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Warn("tokens.lookup_failed", "error", err)
		}
		return "", false
	}
	return appID, true
}

// List implements Store.
func (s *SQLiteStore) List() ([]Token, error) {
	rows, err := s.db.Query(`SELECT id, app_id, issued_at FROM auth_tokens ORDER BY issued_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var tok Token
		var issued int64
		if err := rows.Scan(&tok.ID, &tok.AppID, &issued); err != nil {
			return nil, err
		}
		tok.IssuedAt = time.UnixMilli(issued).UTC()
		out = append(out, tok)
	}
	return out, rows.Err()
}

// Revoke implements Store.
func (s *SQLiteStore) Revoke(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM auth_tokens WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		slog.Info("tokens.revoked", "id", id, "backend", "sqlite")
	}
	return n > 0, nil
}
