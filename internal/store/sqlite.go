package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"lector/tts"
)

// SQLite is a Store backed by a single-file SQLite database. The mutex
// serializes writers; SQLite allows only one at a time.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens the database file at path, creating it and its
// directory when absent.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS progress (
		book_key       TEXT PRIMARY KEY,
		sentence_index INTEGER NOT NULL DEFAULT 0,
		voice_uri      TEXT NOT NULL DEFAULT '',
		rate           REAL NOT NULL DEFAULT 1.0,
		elapsed        REAL NOT NULL DEFAULT 0,
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

func (s *SQLite) Load(key string) (tts.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT sentence_index, voice_uri, rate, elapsed
		FROM progress WHERE book_key = ?
	`, key)
	var p tts.Progress
	err := row.Scan(&p.SentenceIndex, &p.VoiceURI, &p.Rate, &p.Elapsed)
	if errors.Is(err, sql.ErrNoRows) {
		return tts.Progress{}, ErrNotFound
	}
	if err != nil {
		return tts.Progress{}, err
	}
	return p, nil
}

func (s *SQLite) Save(key string, p tts.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO progress (book_key, sentence_index, voice_uri, rate, elapsed, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(book_key) DO UPDATE SET
			sentence_index = excluded.sentence_index,
			voice_uri      = excluded.voice_uri,
			rate           = excluded.rate,
			elapsed        = excluded.elapsed,
			updated_at     = CURRENT_TIMESTAMP
	`, key, p.SentenceIndex, p.VoiceURI, p.Rate, p.Elapsed)
	return err
}

func (s *SQLite) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM progress WHERE book_key = ?`, key)
	return err
}

func (s *SQLite) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT book_key FROM progress ORDER BY book_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
