package config

import (
	"os"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	configContent := `
server:
  port: 9090
  max_upload_mb: 10
minio:
  endpoint: "localhost:9000"
  access_key: "minioadmin"
  secret_key: "minioadmin"
  use_ssl: false
  xml_bucket: "xml"
omr:
  image: "audiveris:test"
  timeout_seconds: 30
  user: "1000:1000"
classifier:
  endpoint: "https://vision.test/"
  prediction_key: "key"
  project_id: "project"
  iteration: "Iteration1"
  allowed_labels: ["sheet", "chords"]
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
log:
  level: "debug"
  format: "json"
store:
  driver: "sqlite"
  dsn: "file:sheets.db"
`
	cfg, err := Load(writeTempConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB != 10 {
		t.Errorf("Expected max_upload_mb 10, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Minio.Endpoint != "localhost:9000" {
		t.Errorf("Expected endpoint localhost:9000, got %s", cfg.Minio.Endpoint)
	}
	if cfg.Minio.XMLBucket != "xml" {
		t.Errorf("Expected xml bucket xml, got %s", cfg.Minio.XMLBucket)
	}
	if cfg.Minio.MIDIBucket != "music-sheets-midi" {
		t.Errorf("Expected default midi bucket, got %s", cfg.Minio.MIDIBucket)
	}
	if cfg.OMR.Image != "audiveris:test" {
		t.Errorf("Expected omr image audiveris:test, got %s", cfg.OMR.Image)
	}
	if cfg.OMR.Timeout() != 30*time.Second {
		t.Errorf("Expected omr timeout 30s, got %v", cfg.OMR.Timeout())
	}
	if cfg.OMR.User != "1000:1000" {
		t.Errorf("Expected omr user 1000:1000, got %s", cfg.OMR.User)
	}
	if len(cfg.Classifier.AllowedLabels) != 2 {
		t.Errorf("Expected 2 allowed labels, got %d", len(cfg.Classifier.AllowedLabels))
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token_expire_hours 48, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected store driver sqlite, got %s", cfg.Store.Driver)
	}
}

func TestLoadDefaults(t *testing.T) {
	configContent := `
minio:
  endpoint: "localhost:9000"
`
	cfg, err := Load(writeTempConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Auth.TokenExpireHours != 24 {
		t.Errorf("Expected default token_expire_hours 24, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.OMR.TimeoutSeconds != 180 {
		t.Errorf("Expected default omr timeout 180, got %d", cfg.OMR.TimeoutSeconds)
	}
	if cfg.OMR.Image != "lsouchet/audiveris" {
		t.Errorf("Expected default omr image, got %s", cfg.OMR.Image)
	}
	if cfg.OCR.Language != "eng" {
		t.Errorf("Expected default ocr language eng, got %s", cfg.OCR.Language)
	}
	if len(cfg.Classifier.AllowedLabels) != 6 {
		t.Errorf("Expected 6 default allowed labels, got %d", len(cfg.Classifier.AllowedLabels))
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Expected default store driver memory, got %s", cfg.Store.Driver)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CLASSIFIER_PREDICTION_KEY", "env-key")
	t.Setenv("PORT", "7070")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test,http://b.test")

	configContent := `
auth:
  jwt_secret: "from-file"
`
	cfg, err := Load(writeTempConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Expected jwt secret from env, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Classifier.PredictionKey != "env-key" {
		t.Errorf("Expected prediction key from env, got %s", cfg.Classifier.PredictionKey)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if len(cfg.CORS.AllowOrigins) != 2 {
		t.Errorf("Expected 2 CORS origins, got %v", cfg.CORS.AllowOrigins)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "invalid: yaml: content:"))
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
