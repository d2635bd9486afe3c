package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OCR     OCRConfig     `yaml:"ocr"`
	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr" validate:"required"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" validate:"gt=0"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine        string `yaml:"engine" validate:"oneof=tesseract gosseract"`
	Tesseract     string `yaml:"tesseract"`
	Language      string `yaml:"language" validate:"required"`
	TessdataDir   string `yaml:"tessdata_dir"`
	HeicConverter string `yaml:"heic_converter" validate:"omitempty,oneof=heif-convert magick sips"`
	PSM           int    `yaml:"psm" validate:"gte=0,lte=13"`
	Preprocess    bool   `yaml:"preprocess"`
	Binarize      bool   `yaml:"binarize"`
	MaxDimension  int    `yaml:"max_dimension" validate:"gte=0"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	APIKey      string        `yaml:"-"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	TopP        float32       `yaml:"top_p" validate:"gte=0,lte=1"`
	TopK        int           `yaml:"top_k" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

// SessionConfig holds session store and worker pool configuration
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
	Workers         int           `yaml:"workers" validate:"gt=0"`
	QueueSize       int           `yaml:"queue_size" validate:"gt=0"`
	JobTimeout      time.Duration `yaml:"job_timeout" validate:"gt=0"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":8081",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   90 * time.Second,
			RequestTimeout: 60 * time.Second,
			MaxUploadBytes: 15 << 20,
		},
		OCR: OCRConfig{
			Engine:        "tesseract",
			Tesseract:     "tesseract",
			Language:      "eng",
			HeicConverter: "magick",
			PSM:           6,
			Preprocess:    true,
			MaxDimension:  2400,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Temperature: 0.2,
			TopP:        0.8,
			TopK:        40,
			Timeout:     45 * time.Second,
		},
		Session: SessionConfig{
			TTL:             time.Hour,
			CleanupInterval: 10 * time.Minute,
			Workers:         4,
			QueueSize:       64,
			JobTimeout:      2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig layers defaults, an optional .env file, an optional YAML file
// (LABELSCAN_CONFIG) and finally environment variables.
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("LABELSCAN_CONFIG"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, NewAppError(CodeConfig, "read "+path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = normalizeAddr(getEnv("HTTP_ADDR", c.Server.HTTPAddr))
	c.Server.GRPCAddr = normalizeAddr(getEnv("GRPC_ADDR", c.Server.GRPCAddr))
	c.Server.ReadTimeout = getEnvAsDuration("HTTP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("HTTP_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.RequestTimeout = getEnvAsDuration("HTTP_REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Language = getEnv("OCR_LANG", c.OCR.Language)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.Preprocess = getEnvAsBool("OCR_PREPROCESS", c.OCR.Preprocess)
	c.OCR.Binarize = getEnvAsBool("OCR_BINARIZE", c.OCR.Binarize)
	c.OCR.MaxDimension = getEnvAsInt("OCR_MAX_DIMENSION", c.OCR.MaxDimension)

	c.LLM.APIKey = getEnv("GEMINI_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("GEMINI_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("GEMINI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Temperature = getEnvAsFloat32("GEMINI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.TopP = getEnvAsFloat32("GEMINI_TOP_P", c.LLM.TopP)
	c.LLM.TopK = getEnvAsInt("GEMINI_TOP_K", c.LLM.TopK)
	c.LLM.Timeout = getEnvAsDuration("GEMINI_TIMEOUT", c.LLM.Timeout)

	c.Session.TTL = getEnvAsDuration("SESSION_TTL", c.Session.TTL)
	c.Session.CleanupInterval = getEnvAsDuration("SESSION_CLEANUP_INTERVAL", c.Session.CleanupInterval)
	c.Session.Workers = getEnvAsInt("WORKERS", c.Session.Workers)
	c.Session.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Session.QueueSize)
	c.Session.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Session.JobTimeout)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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

func normalizeAddr(addr string) string {
	if addr != "" && !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}

// Validate validates the loaded configuration. A missing API key is not an
// error here; it surfaces as AUTH_MISSING when an analysis is requested.
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError(CodeConfig, err.Error(), ErrInvalidInput)
	}
	return nil
}
