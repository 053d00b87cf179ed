package validation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Gandorini/S-T-Station/model"
)

// AuditLog appends one JSON line per classifier call. slog handlers issue a
// single Write per record under their own lock, so lines never interleave.
type AuditLog struct {
	log    *slog.Logger
	closer io.Closer
}

// OpenAuditLog opens (or creates) the audit file at path in append mode.
func OpenAuditLog(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a := NewAuditLog(f)
	a.closer = f
	return a, nil
}

// NewAuditLog writes audit records to w.
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{log: slog.New(slog.NewJSONHandler(w, nil))}
}

// Record logs the predictions returned for filename.
func (a *AuditLog) Record(ctx context.Context, filename string, predictions []model.Prediction) {
	if a == nil {
		return
	}
	if predictions == nil {
		predictions = []model.Prediction{}
	}
	a.log.InfoContext(ctx, "classification",
		slog.String("filename", filename),
		slog.Any("predictions", predictions),
	)
}

func (a *AuditLog) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
