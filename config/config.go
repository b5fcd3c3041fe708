package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	WebRTC    WebRTCConfig
	AWS       AWSConfig
	Recording RecordingConfig
	OpenAI    OpenAIConfig
	VertexAI  VertexAIConfig
	Interview InterviewConfig
}

// RecordingConfig holds the local spool for answer media awaiting upload.
type RecordingConfig struct {
	OutputDir string // empty = os.TempDir()
}

// WebRTCConfig holds STUN/TURN ICE server URLs for live proctoring.
type WebRTCConfig struct {
	ICEUrls []string // comma-separated in env
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret            string
	ExpireHours       int
	InviteExpireHours int // candidate invite tokens
}

// AWSConfig holds AWS credentials and the answer media bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AnswersBucket        string
	PresignExpireMinutes int
}

// OpenAIConfig configures transcription and, when selected, the LLM.
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	TimeoutSec         int
}

// VertexAIConfig configures the Gemini provider.
type VertexAIConfig struct {
	ProjectID string
	Location  string
	Model     string
}

// InterviewConfig holds interview session settings.
type InterviewConfig struct {
	CatalogPath      string // optional YAML override of the language catalogue
	QuestionCount    int
	AIProvider       string // "openai" or "vertex"
	SettleDelayMS    int
	DrainTimeoutSec  int
	DeviceTimeoutSec int
}

const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

// SettleDelay is the wait between a stop and collecting the audio.
func (c InterviewConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// DrainTimeout bounds how long submit waits for transcriptions.
func (c InterviewConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSec) * time.Second
}

// DeviceTimeout bounds one media round trip to the candidate's browser.
func (c InterviewConfig) DeviceTimeout() time.Duration {
	return time.Duration(c.DeviceTimeoutSec) * time.Second
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "interviews"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours:       getEnvInt("JWT_EXPIRE_HOURS", 24),
			InviteExpireHours: getEnvInt("JWT_INVITE_EXPIRE_HOURS", 168),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AnswersBucket:        getEnv("AWS_S3_ANSWERS_BUCKET", "interview-answers"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Recording: RecordingConfig{
			OutputDir: getEnv("RECORDING_OUTPUT_DIR", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			TranscriptionModel: getEnv("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4"),
			TimeoutSec:         getEnvInt("OPENAI_TIMEOUT_SEC", 60),
		},
		VertexAI: VertexAIConfig{
			ProjectID: getEnv("VERTEX_PROJECT_ID", ""),
			Location:  getEnv("VERTEX_LOCATION", "us-central1"),
			Model:     getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		Interview: InterviewConfig{
			CatalogPath:      getEnv("INTERVIEW_CATALOG_PATH", ""),
			QuestionCount:    getEnvInt("INTERVIEW_QUESTION_COUNT", 5),
			AIProvider:       strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
			SettleDelayMS:    getEnvInt("TRANSCRIPTION_SETTLE_MS", 500),
			DrainTimeoutSec:  getEnvInt("TRANSCRIPTION_DRAIN_TIMEOUT_SEC", 15),
			DeviceTimeoutSec: getEnvInt("MEDIA_DEVICE_TIMEOUT_SEC", 10),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	switch c.Interview.AIProvider {
	case ProviderOpenAI:
	case ProviderVertex:
		if c.VertexAI.ProjectID == "" {
			errs = append(errs, errors.New("VERTEX_PROJECT_ID is required when AI_PROVIDER=vertex"))
		}
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER %q is not one of openai, vertex", c.Interview.AIProvider))
	}
	if c.Interview.QuestionCount < 1 {
		errs = append(errs, errors.New("INTERVIEW_QUESTION_COUNT must be at least 1"))
	}
	if c.Interview.DrainTimeoutSec < 1 {
		errs = append(errs, errors.New("TRANSCRIPTION_DRAIN_TIMEOUT_SEC must be at least 1"))
	}
	if c.Interview.DeviceTimeoutSec < 1 {
		errs = append(errs, errors.New("MEDIA_DEVICE_TIMEOUT_SEC must be at least 1"))
	}
	if c.Interview.SettleDelayMS < 0 {
		errs = append(errs, errors.New("TRANSCRIPTION_SETTLE_MS must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
