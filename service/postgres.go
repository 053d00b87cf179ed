package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gandorini/S-T-Station/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS music_sheets (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	composer   TEXT NOT NULL,
	instrument TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	tags       TEXT[] NOT NULL DEFAULT '{}',
	file_url   TEXT NOT NULL,
	xml_url    TEXT NOT NULL DEFAULT '',
	midi_url   TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_music_sheets_user_id ON music_sheets (user_id);
`

// PostgresStore keeps the catalog in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects to dsn, pings it and creates the schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.MaxConns = 10
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "sheet-station"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	slog.Info("sheet store initialized", "driver", "postgres")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	sheet := &model.MusicSheet{UserID: userID}
	in.Apply(sheet)
	row := s.pool.QueryRow(ctx,
		`INSERT INTO music_sheets (title, composer, instrument, difficulty, tags, file_url, xml_url, midi_url, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+sheetColumns,
		sheet.Title, sheet.Composer, sheet.Instrument, sheet.Difficulty, sheet.Tags,
		sheet.FileURL, sheet.XMLURL, sheet.MIDIURL, userID)
	created, err := scanPostgresSheet(row)
	if err != nil {
		return nil, fmt.Errorf("insert music sheet: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.MusicSheet, error) {
	sheet, err := scanPostgresSheet(s.pool.QueryRow(ctx, `SELECT `+sheetColumns+` FROM music_sheets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sheet, err
}

func (s *PostgresStore) List(ctx context.Context) ([]*model.MusicSheet, error) {
	return s.query(ctx, `SELECT `+sheetColumns+` FROM music_sheets ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*model.MusicSheet, error) {
	return s.query(ctx, `SELECT `+sheetColumns+` FROM music_sheets WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (s *PostgresStore) Update(ctx context.Context, id int64, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	sheet := &model.MusicSheet{}
	in.Apply(sheet)

	var updated *model.MusicSheet
	err := s.withOwnership(ctx, id, userID, func(tx pgx.Tx) error {
		var err error
		updated, err = scanPostgresSheet(tx.QueryRow(ctx,
			`UPDATE music_sheets SET title = $1, composer = $2, instrument = $3, difficulty = $4, tags = $5,
			 file_url = $6, xml_url = $7, midi_url = $8, updated_at = now() WHERE id = $9
			 RETURNING `+sheetColumns,
			sheet.Title, sheet.Composer, sheet.Instrument, sheet.Difficulty, sheet.Tags,
			sheet.FileURL, sheet.XMLURL, sheet.MIDIURL, id))
		return err
	})
	return updated, err
}

func (s *PostgresStore) Delete(ctx context.Context, id int64, userID string) error {
	return s.withOwnership(ctx, id, userID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM music_sheets WHERE id = $1`, id)
		return err
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// withOwnership locks the row, checks the owner and runs fn in the same transaction.
func (s *PostgresStore) withOwnership(ctx context.Context, id int64, userID string, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT user_id FROM music_sheets WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
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
		return nil
	})
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*model.MusicSheet, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query music sheets: %w", err)
	}
	defer rows.Close()

	result := []*model.MusicSheet{}
	for rows.Next() {
		sheet, err := scanPostgresSheet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sheet)
	}
	return result, rows.Err()
}

func scanPostgresSheet(row pgx.Row) (*model.MusicSheet, error) {
	var m model.MusicSheet
	err := row.Scan(&m.ID, &m.Title, &m.Composer, &m.Instrument, &m.Difficulty, &m.Tags,
		&m.FileURL, &m.XMLURL, &m.MIDIURL, &m.UserID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return &m, nil
}
