package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Minio      MinioConfig      `yaml:"minio"`
	OMR        OMRConfig        `yaml:"omr"`
	OCR        OCRConfig        `yaml:"ocr"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Audit      AuditConfig      `yaml:"audit"`
	Store      StoreConfig      `yaml:"store"`
	CORS       CORSConfig       `yaml:"cors"`
}

type ServerConfig struct {
	Port           int    `yaml:"port"`
	MaxUploadMB    int64  `yaml:"max_upload_mb"`
	RateLimit      int    `yaml:"rate_limit"`
	WorkspaceRoot  string `yaml:"workspace_root"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	PublicURL  string `yaml:"public_url"`
	XMLBucket  string `yaml:"xml_bucket"`
	MIDIBucket string `yaml:"midi_bucket"`
}

type OMRConfig struct {
	Docker         string `yaml:"docker"`
	Image          string `yaml:"image"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxConcurrent  int64  `yaml:"max_concurrent"`
	User           string `yaml:"user"` // docker --user, empty = server uid:gid
}

// Timeout returns the hard limit for a single recognition run.
func (c OMRConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type OCRConfig struct {
	Tesseract string `yaml:"tesseract"`
	Pdftoppm  string `yaml:"pdftoppm"`
	Language  string `yaml:"language"`
	DPI       int    `yaml:"dpi"`
}

type ClassifierConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	PredictionKey string   `yaml:"prediction_key"`
	ProjectID     string   `yaml:"project_id"`
	Iteration     string   `yaml:"iteration"`
	AllowedLabels []string `yaml:"allowed_labels"`
	MaxImageSide  int      `yaml:"max_image_side"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

type StoreConfig struct {
	Driver    string `yaml:"driver"` // memory, sqlite, postgres
	DSN       string `yaml:"dsn"`
	MaxSheets int    `yaml:"max_sheets"` // memory driver only, 0 = unlimited
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// Load reads the YAML file at path, applies environment overrides and fills
// in defaults. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	overrideString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	overrideString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	overrideString(&c.Minio.PublicURL, "MINIO_PUBLIC_URL")
	overrideString(&c.OMR.Image, "OMR_IMAGE")
	overrideString(&c.OMR.User, "OMR_USER")
	overrideString(&c.Classifier.Endpoint, "CLASSIFIER_ENDPOINT")
	overrideString(&c.Classifier.PredictionKey, "CLASSIFIER_PREDICTION_KEY")
	overrideString(&c.Classifier.ProjectID, "CLASSIFIER_PROJECT_ID")
	overrideString(&c.Classifier.Iteration, "CLASSIFIER_ITERATION")
	overrideString(&c.Audit.Path, "AUDIT_LOG_PATH")
	overrideString(&c.Store.Driver, "STORE_DRIVER")
	overrideString(&c.Store.DSN, "STORE_DSN")
	if v, ok := os.LookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("CORS_ALLOW_ORIGINS"); ok && v != "" {
		c.CORS.AllowOrigins = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 25
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 240
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
	if c.Minio.XMLBucket == "" {
		c.Minio.XMLBucket = "music-sheets-xml"
	}
	if c.Minio.MIDIBucket == "" {
		c.Minio.MIDIBucket = "music-sheets-midi"
	}
	if c.OMR.Docker == "" {
		c.OMR.Docker = "docker"
	}
	if c.OMR.Image == "" {
		c.OMR.Image = "lsouchet/audiveris"
	}
	if c.OMR.TimeoutSeconds == 0 {
		c.OMR.TimeoutSeconds = 180
	}
	if c.OMR.MaxConcurrent == 0 {
		c.OMR.MaxConcurrent = 2
	}
	if c.OCR.Tesseract == "" {
		c.OCR.Tesseract = "tesseract"
	}
	if c.OCR.Pdftoppm == "" {
		c.OCR.Pdftoppm = "pdftoppm"
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.DPI == 0 {
		c.OCR.DPI = 150
	}
	if len(c.Classifier.AllowedLabels) == 0 {
		c.Classifier.AllowedLabels = []string{"partitura", "partituras", "cifra", "cifras", "sheet music", "chord chart"}
	}
	if c.Classifier.MaxImageSide == 0 {
		c.Classifier.MaxImageSide = 2048
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "logs/classifier_predictions.log"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "file:sheets.db?_pragma=busy_timeout(5000)"
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"http://localhost:5173"}
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
