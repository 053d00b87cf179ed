package cmd

import (
	"context"
	"log/slog"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/service"
	"github.com/Gandorini/S-T-Station/validation"
)

// buildPipeline assembles the validation pipeline from cfg. Collaborators
// that are not configured are left out; the strategies needing them report
// a configuration error per request instead of failing startup.
func buildPipeline(ctx context.Context, cfg *config.Config) (*validation.Pipeline, func(), error) {
	runner := validation.NewExecRunner()
	raster := validation.NewRasterizer(runner, cfg.OCR.Pdftoppm, cfg.OCR.DPI)

	audit, err := validation.OpenAuditLog(cfg.Audit.Path)
	if err != nil {
		slog.Warn("classifier audit log disabled", "path", cfg.Audit.Path, "error", err)
		audit = nil
	}
	predictor := service.NewCustomVisionService(&cfg.Classifier)

	deps := validation.Deps{
		OMR: validation.NewAudiverisOMR(runner, validation.OMROptions{
			Docker:        cfg.OMR.Docker,
			Image:         cfg.OMR.Image,
			Timeout:       cfg.OMR.Timeout(),
			MaxConcurrent: cfg.OMR.MaxConcurrent,
			User:          cfg.OMR.User,
		}),
		Text:          validation.NewOCRExtractor(runner, cfg.OCR.Tesseract, cfg.OCR.Language),
		Staff:         validation.NewHoughStaffDetector(),
		Raster:        raster,
		Classifier:    validation.NewImageClassifier(predictor, raster, audit, cfg.Classifier),
		AllowedLabels: cfg.Classifier.AllowedLabels,
		XMLBucket:     cfg.Minio.XMLBucket,
		MIDIBucket:    cfg.Minio.MIDIBucket,
		WorkspaceRoot: cfg.Server.WorkspaceRoot,
	}

	if cfg.Minio.Endpoint != "" {
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			audit.Close()
			return nil, nil, err
		}
		for _, bucket := range []string{cfg.Minio.XMLBucket, cfg.Minio.MIDIBucket} {
			if err := minioSvc.EnsureBucket(ctx, bucket); err != nil {
				slog.Warn("bucket not ready, will retry on first upload", "bucket", bucket, "error", err)
			}
		}
		deps.Store = minioSvc
	} else {
		slog.Warn("minio endpoint not set, conversion disabled")
	}

	cleanup := func() {
		if err := audit.Close(); err != nil {
			slog.Warn("failed to close audit log", "error", err)
		}
	}
	return validation.NewPipeline(deps), cleanup, nil
}
