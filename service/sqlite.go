package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Gandorini/S-T-Station/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS music_sheets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	composer   TEXT NOT NULL,
	instrument TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	file_url   TEXT NOT NULL,
	xml_url    TEXT NOT NULL DEFAULT '',
	midi_url   TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_music_sheets_user_id ON music_sheets (user_id);
`

const sheetColumns = `id, title, composer, instrument, difficulty, tags, file_url, xml_url, midi_url, user_id, created_at, updated_at`

// SQLiteStore keeps the catalog in an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens dsn with the pure-Go driver and creates the schema.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	slog.Info("sheet store initialized", "driver", "sqlite")
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	sheet := &model.MusicSheet{UserID: userID}
	in.Apply(sheet)
	now := s.now().UTC()
	tags, err := json.Marshal(sheet.Tags)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO music_sheets (title, composer, instrument, difficulty, tags, file_url, xml_url, midi_url, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sheet.Title, sheet.Composer, sheet.Instrument, sheet.Difficulty, string(tags),
		sheet.FileURL, sheet.XMLURL, sheet.MIDIURL, userID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert music sheet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert music sheet: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.MusicSheet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM music_sheets WHERE id = ?`, id)
	sheet, err := scanSQLiteSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sheet, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.MusicSheet, error) {
	return s.query(ctx, `SELECT `+sheetColumns+` FROM music_sheets ORDER BY created_at DESC, id DESC`)
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*model.MusicSheet, error) {
	return s.query(ctx, `SELECT `+sheetColumns+` FROM music_sheets WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	sheet := &model.MusicSheet{}
	in.Apply(sheet)
	tags, err := json.Marshal(sheet.Tags)
	if err != nil {
		return nil, err
	}

	err = s.withOwnership(ctx, id, userID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE music_sheets SET title = ?, composer = ?, instrument = ?, difficulty = ?, tags = ?,
			 file_url = ?, xml_url = ?, midi_url = ?, updated_at = ? WHERE id = ?`,
			sheet.Title, sheet.Composer, sheet.Instrument, sheet.Difficulty, string(tags),
			sheet.FileURL, sheet.XMLURL, sheet.MIDIURL, formatTime(s.now().UTC()), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64, userID string) error {
	return s.withOwnership(ctx, id, userID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM music_sheets WHERE id = ?`, id)
		return err
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withOwnership runs fn in a transaction after checking that userID owns id.
func (s *SQLiteStore) withOwnership(ctx context.Context, id int64, userID string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM music_sheets WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load music sheet owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	if err := fn(tx); err != nil {
		return fmt.Errorf("write music sheet: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*model.MusicSheet, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query music sheets: %w", err)
	}
	defer rows.Close()

	result := []*model.MusicSheet{}
	for rows.Next() {
		sheet, err := scanSQLiteSheet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sheet)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSheet(row rowScanner) (*model.MusicSheet, error) {
	var (
		m                model.MusicSheet
		tags             string
		created, updated string
	)
	err := row.Scan(&m.ID, &m.Title, &m.Composer, &m.Instrument, &m.Difficulty, &tags,
		&m.FileURL, &m.XMLURL, &m.MIDIURL, &m.UserID, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of sheet %d: %w", m.ID, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("decode created_at of sheet %d: %w", m.ID, err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("decode updated_at of sheet %d: %w", m.ID, err)
	}
	return &m, nil
}

// formatTime uses a fixed-width layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
