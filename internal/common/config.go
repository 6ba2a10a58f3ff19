package common

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Azure    AzureConfig
	S3       S3Config
}

// EngineConfig holds document-processing configuration
type EngineConfig struct {
	RulesPath       string        // empty -> embedded default rules
	Workers         int           // documents processed in parallel
	Parallelism     int           // strategies run in parallel per document, 0 = all
	StrategyTimeout time.Duration // per strategy invocation
	DocumentTimeout time.Duration // per document, 0 = none
}

// DatabaseConfig holds the optional record sink configuration
type DatabaseConfig struct {
	DSN              string // sqlite://path, sqlite://:memory:, or postgres://...
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	DPI           int
	MaxPages      int
	HeicConverter string
	Preprocess    bool
	TSVConfidence bool
}

// OpenAIConfig holds OpenAI vision transcription configuration
type OpenAIConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
}

// GeminiConfig holds Gemini vision transcription configuration
type GeminiConfig struct {
	APIKey string
	Model  string
}

// AzureConfig holds Azure Computer Vision configuration
type AzureConfig struct {
	Endpoint string
	Key      string
	Language string
}

// S3Config holds credentials for s3:// document sources
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
}

// LoadConfig loads configuration from environment variables, reading a .env file first when present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config.dotenv.load_failed", "error", err)
	}
	return &Config{
		Engine: EngineConfig{
			RulesPath:       getEnv("INVOICEX_RULES", ""),
			Workers:         getEnvAsInt("INVOICEX_WORKERS", 4),
			Parallelism:     getEnvAsInt("INVOICEX_STRATEGY_PARALLELISM", 0),
			StrategyTimeout: getEnvAsDuration("INVOICEX_STRATEGY_TIMEOUT", 2*time.Minute),
			DocumentTimeout: getEnvAsDuration("INVOICEX_DOCUMENT_TIMEOUT", 0),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:       getEnv("GRPC_ADDR", ":8080"),
			HTTPAddr:       getEnv("HTTP_ADDR", ":8081"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout: getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 5*time.Minute),
			MaxUploadBytes: int64(getEnvAsInt("HTTP_MAX_UPLOAD_MB", 25)) << 20,
		},
		OCR: OCRConfig{
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
			HeicConverter: getEnv("HEIC_CONVERTER", "magick"),
			Preprocess:    getEnvAsBool("OCR_PREPROCESS", true),
			TSVConfidence: getEnvAsBool("OCR_TSV_CONFIDENCE", false),
		},
		OpenAI: OpenAIConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxRetries:  getEnvAsInt("OPENAI_MAX_RETRIES", 3),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Azure: AzureConfig{
			Endpoint: getEnv("AZURE_VISION_ENDPOINT", ""),
			Key:      getEnv("AZURE_VISION_KEY", ""),
			Language: getEnv("AZURE_VISION_LANGUAGE", "en"),
		},
		S3: S3Config{
			Region:    getEnv("AWS_REGION", ""),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("INVOICEX_WORKERS", c.Engine.Workers, Positive).
		Field("INVOICEX_STRATEGY_PARALLELISM", c.Engine.Parallelism, NonNegative).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_MAX_PAGES", c.OCR.MaxPages, NonNegative)
	if c.Engine.StrategyTimeout <= 0 {
		v.Field("INVOICEX_STRATEGY_TIMEOUT", c.Engine.StrategyTimeout.String(), Fail("must be positive"))
	}
	if v.HasErrors() {
		return NewConfigError(v.ErrorMessage(), nil)
	}
	return nil
}

// ValidateServer checks the settings only the daemon needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := NewValidator().
		Field("GRPC_ADDR", c.Server.GRPCAddr, Required).
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required)
	if v.HasErrors() {
		return NewConfigError(v.ErrorMessage(), nil)
	}
	return nil
}
