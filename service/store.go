package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/model"
)

var (
	ErrNotFound  = errors.New("music sheet not found")
	ErrForbidden = errors.New("music sheet belongs to another user")
)

// SheetStore persists the music sheet catalog. Update and Delete return
// ErrNotFound for unknown ids and ErrForbidden when userID is not the owner.
type SheetStore interface {
	Create(ctx context.Context, userID string, in model.MusicSheetInput) (*model.MusicSheet, error)
	Get(ctx context.Context, id int64) (*model.MusicSheet, error)
	List(ctx context.Context) ([]*model.MusicSheet, error)
	ListByUser(ctx context.Context, userID string) ([]*model.MusicSheet, error)
	Update(ctx context.Context, id int64, userID string, in model.MusicSheetInput) (*model.MusicSheet, error)
	Delete(ctx context.Context, id int64, userID string) error
	Close() error
}

// NewSheetStore opens the store selected by cfg.Driver.
func NewSheetStore(ctx context.Context, cfg *config.StoreConfig) (SheetStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.MaxSheets), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, cfg.DSN)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// MemoryStore is an in-memory SheetStore for development and tests.
type MemoryStore struct {
	sheets    map[int64]*model.MusicSheet
	nextID    int64
	mu        sync.RWMutex
	maxSheets int // Maximum sheets to keep, 0 = unlimited
	now       func() time.Time
}

func NewMemoryStore(maxSheets int) *MemoryStore {
	if maxSheets < 0 {
		maxSheets = 0
	}
	slog.Info("sheet store initialized", "driver", "memory", "max_sheets", maxSheets)
	return &MemoryStore{
		sheets:    make(map[int64]*model.MusicSheet),
		maxSheets: maxSheets,
		now:       time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now()
	sheet := &model.MusicSheet{ID: s.nextID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	in.Apply(sheet)
	s.sheets[sheet.ID] = sheet

	s.cleanupIfNeeded()
	return clone(sheet), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*model.MusicSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sheet, ok := s.sheets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sheet), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.MusicSheet, error) {
	return s.filter(func(*model.MusicSheet) bool { return true }), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*model.MusicSheet, error) {
	return s.filter(func(m *model.MusicSheet) bool { return m.UserID == userID }), nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, userID string, in model.MusicSheetInput) (*model.MusicSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.owned(id, userID)
	if err != nil {
		return nil, err
	}
	in.Apply(sheet)
	sheet.UpdatedAt = s.now()
	return clone(sheet), nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(id, userID); err != nil {
		return err
	}
	delete(s.sheets, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Count returns the number of sheets in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sheets)
}

// owned must be called with lock held.
func (s *MemoryStore) owned(id int64, userID string) (*model.MusicSheet, error) {
	sheet, ok := s.sheets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sheet.UserID != userID {
		return nil, ErrForbidden
	}
	return sheet, nil
}

// filter returns matching sheets newest first.
func (s *MemoryStore) filter(keep func(*model.MusicSheet) bool) []*model.MusicSheet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*model.MusicSheet{}
	for _, m := range s.sheets {
		if keep(m) {
			result = append(result, clone(m))
		}
	}
	sortNewestFirst(result)
	return result
}

// cleanupIfNeeded removes the oldest sheets if store exceeds maxSheets
// Must be called with lock held
func (s *MemoryStore) cleanupIfNeeded() {
	if s.maxSheets <= 0 || len(s.sheets) <= s.maxSheets {
		return
	}

	sheets := make([]*model.MusicSheet, 0, len(s.sheets))
	for _, m := range s.sheets {
		sheets = append(sheets, m)
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].ID < sheets[j].ID })

	removeCount := len(sheets) - s.maxSheets
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old music sheet",
			"sheet_id", sheets[i].ID,
			"created_at", sheets[i].CreatedAt,
		)
		delete(s.sheets, sheets[i].ID)
	}
}

func sortNewestFirst(sheets []*model.MusicSheet) {
	sort.SliceStable(sheets, func(i, j int) bool {
		if !sheets[i].CreatedAt.Equal(sheets[j].CreatedAt) {
			return sheets[i].CreatedAt.After(sheets[j].CreatedAt)
		}
		return sheets[i].ID > sheets[j].ID
	})
}

func clone(m *model.MusicSheet) *model.MusicSheet {
	c := *m
	c.Tags = append([]string{}, m.Tags...)
	return &c
}
