package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	WebRTC   WebRTCConfig
	AWS      AWSConfig
	Stream   StreamConfig
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
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/fanzlive?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// WebRTCConfig holds STUN/TURN ICE server URLs handed to joining participants.
type WebRTCConfig struct {
	ICEUrls []string // e.g. stun:stun.l.google.com:19302 (comma-separated in env)
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// StreamConfig holds live-stream business policy. These are platform policy,
// not mechanism, so they come from environment rather than literals.
type StreamConfig struct {
	// GiftCreatorShare is the fraction of a gift's value credited to the
	// receiving creator (the platform keeps the rest).
	GiftCreatorShare float64
	// GiftHighlightThresholdCents auto-creates a peak_gifts highlight for any
	// gift whose total value meets the threshold (platform minor units).
	GiftHighlightThresholdCents int
	// PeakViewerHighlightMin is the minimum peak audience before a
	// peak_viewers highlight is ever flagged.
	PeakViewerHighlightMin int
	// ChatBurstThreshold / ChatBurstWindow drive ai_detected highlights:
	// more than ChatBurstThreshold messages within the trailing window.
	ChatBurstThreshold int
	ChatBurstWindow    time.Duration
	// HighlightInterval is how often the detection pass runs over live sessions.
	HighlightInterval time.Duration
	// SweepInterval is how often ended sessions are checked for purging.
	SweepInterval time.Duration
	// SessionRetention is how long an ended session stays in the registry.
	SessionRetention time.Duration
	// ChatBufferSize bounds the in-memory chat buffer per session.
	ChatBufferSize int
	// BlockedWords is the chat blocklist (case-insensitive substring match).
	BlockedWords []string
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
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))
	giftShare, err := strconv.ParseFloat(getEnv("GIFT_CREATOR_SHARE", "0.80"), 64)
	if err != nil || giftShare <= 0 || giftShare > 1 {
		return nil, fmt.Errorf("invalid GIFT_CREATOR_SHARE")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/fanzlive?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fanzlive"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "fanzlive-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Stream: StreamConfig{
			GiftCreatorShare:            giftShare,
			GiftHighlightThresholdCents: getEnvInt("GIFT_HIGHLIGHT_THRESHOLD_CENTS", 10000),
			PeakViewerHighlightMin:      getEnvInt("PEAK_VIEWER_HIGHLIGHT_MIN", 100),
			ChatBurstThreshold:          getEnvInt("CHAT_BURST_THRESHOLD", 50),
			ChatBurstWindow:             getEnvDuration("CHAT_BURST_WINDOW_SEC", 60),
			HighlightInterval:           getEnvDuration("HIGHLIGHT_INTERVAL_SEC", 10),
			SweepInterval:               getEnvDuration("SWEEP_INTERVAL_SEC", 60),
			SessionRetention:            getEnvDuration("SESSION_RETENTION_SEC", 3600),
			ChatBufferSize:              getEnvInt("CHAT_BUFFER_SIZE", 1000),
			BlockedWords:                splitTrim(getEnv("CHAT_BLOCKED_WORDS", "spam,scam,fake"), ","),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallbackSec int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSec)) * time.Second
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
