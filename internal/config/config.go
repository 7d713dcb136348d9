package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultRedisAddr    = "127.0.0.1:6379"
	defaultRedisDB      = 0
	defaultPoseSource   = "push"
	defaultWindowFrames = 30
	defaultHistoryLimit = 50
	defaultMargin       = 5.0
	defaultMinEyeScore  = 0.5
	defaultQueueSize    = 1024
	defaultAlertSound   = "https://raw.githubusercontent.com/seven320/pose-net-correction/master/demos/sounds/Doorbell-Melody01-1.mp3"
)

type Config struct {
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PoseSource    string
	WindowFrames  int
	HistoryLimit  int
	Margin        float64
	MinEyeScore   float64
	QueueSize     int
	AlertSound    string
	LogLevel      string
	LogFile       string
	Env           string
}

// Load reads the environment, after loading the given .env files if they
// exist. Missing files are ignored; a file that exists but does not parse
// is an error.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return Config{
		HTTPAddr:      readEnv("HTTP_ADDR", defaultHTTPAddr),
		RedisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       readEnvInt("REDIS_DB", defaultRedisDB),
		PoseSource:    readEnv("POSE_SOURCE", defaultPoseSource),
		WindowFrames:  readEnvInt("WINDOW_FRAMES", defaultWindowFrames),
		HistoryLimit:  readEnvInt("HISTORY_LIMIT", defaultHistoryLimit),
		Margin:        readEnvFloat("THRESHOLD_MARGIN", defaultMargin),
		MinEyeScore:   readEnvFloat("MIN_EYE_SCORE", defaultMinEyeScore),
		QueueSize:     readEnvInt("QUEUE_SIZE", defaultQueueSize),
		AlertSound:    readEnv("ALERT_SOUND_URL", defaultAlertSound),
		LogLevel:      readEnv("LOG_LEVEL", "info"),
		LogFile:       readEnv("LOG_FILE", ""),
		Env:           readEnv("APP_ENV", "production"),
	}, nil
}

func readEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
