package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database DatabaseConfig
	Ingest   IngestConfig
	HTTP     HTTPConfig
	Server   ServerConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver        string        `envconfig:"DB_DRIVER" default:"sqlite"`
	Path          string        `envconfig:"DB_PATH" default:"./data/financial.db"`
	Host          string        `envconfig:"DB_HOST" default:"localhost"`
	Port          int           `envconfig:"DB_PORT" default:"5432"`
	User          string        `envconfig:"DB_USER" default:"postgres"`
	Password      string        `envconfig:"DB_PASSWORD" default:"password"`
	Name          string        `envconfig:"DB_NAME" default:"twmarket"`
	SlowThreshold time.Duration `envconfig:"DB_SLOW_THRESHOLD" default:"200ms"`
}

// DSN returns the postgres connection string. The sqlite driver uses Path.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Taipei",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

type IngestConfig struct {
	BatchSize      int `envconfig:"BATCH_SIZE" default:"500"`
	WorkerCount    int `envconfig:"WORKER_COUNT" default:"4"`
	FileWorkers    int `envconfig:"FILE_WORKERS" default:"4"`
	BufferSize     int `envconfig:"BUFFER_SIZE" default:"64"`
	LargeFileMB    int `envconfig:"LARGE_FILE_MB" default:"10"`
	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"10000"`
	LargeChunkSize int `envconfig:"LARGE_CHUNK_SIZE" default:"50000"`
}

type HTTPConfig struct {
	Timeout           time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	UserAgent         string        `envconfig:"HTTP_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"1"`
	DownloadRetries   int           `envconfig:"DOWNLOAD_RETRIES" default:"3"`
}

type ServerConfig struct {
	Addr string `envconfig:"SERVER_ADDR" default:"127.0.0.1:8080"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.WorkerCount <= 0 || c.Ingest.FileWorkers <= 0 {
		return fmt.Errorf("WORKER_COUNT and FILE_WORKERS must be positive")
	}
	if c.HTTP.DownloadRetries < 1 {
		c.HTTP.DownloadRetries = 1
	}
	return nil
}
