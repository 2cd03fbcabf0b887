// Package config loads service configuration: a yaml file for the app
// settings and .env/environment variables for credentials.
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
)

// AppConfig is the top-level service configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Storage    StorageConfig    `yaml:"storage"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type JobsConfig struct {
	// Mode selects where jobs run: "pool" for the in-process worker pool,
	// "queue" to enqueue to the asynq queue drained by worker processes.
	// Queue mode needs the redis job store so both sides see job state.
	Mode string `yaml:"mode"`
	// Store selects the durable backend: "file", "redis", or "" for
	// memory-only.
	Store      string `yaml:"store"`
	Dir        string `yaml:"dir"`
	RedisAddr  string `yaml:"redisAddr"`
	RedisDB    int    `yaml:"redisDb"`
	PoolSize   int    `yaml:"poolSize"`
	QueueDepth int    `yaml:"queueDepth"`
}

type ExtractionConfig struct {
	DPI            int    `yaml:"dpi"`
	MaxPages       int    `yaml:"maxPages"`
	BatchSize      int    `yaml:"batchSize"`
	QualityRetries int    `yaml:"qualityRetries"`
	QualityTarget  int    `yaml:"qualityTarget"`
	Language       string `yaml:"language"`
	OCRWorkers     int    `yaml:"ocrWorkers"`
	// Backend selects the OCR engine: "tesseract" (default) or "textract".
	Backend string `yaml:"backend"`
}

type OllamaConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	PoolSize int    `yaml:"poolSize"`
}

type StorageConfig struct {
	// Type mirrors pkg/storage: "minio", "s3", or "" to disable mirroring.
	Type string `yaml:"type"`
}

func defaults() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Port: "8080"},
		Jobs: JobsConfig{
			Mode:       "pool",
			Store:      "file",
			Dir:        "data/jobs",
			RedisAddr:  "localhost:6379",
			PoolSize:   2,
			QueueDepth: 64,
		},
		Extraction: ExtractionConfig{
			DPI:            600,
			BatchSize:      5,
			QualityRetries: 2,
			Language:       "eng",
			OCRWorkers:     4,
			Backend:        "tesseract",
		},
		Ollama: OllamaConfig{
			Endpoint: "http://localhost:11434",
			Model:    "llava",
			PoolSize: 2,
		},
	}
}

// GetAppConfig loads the configuration once. The yaml path comes from
// APP_CONFIG (default configs/app.yaml); a missing file keeps defaults.
func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, falling back to environment variables")
		}

		appConfig = defaults()

		path := os.Getenv("APP_CONFIG")
		if path == "" {
			path = "configs/app.yaml"
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: config file not found at %s, using defaults", path)
			return
		}
		if err := yaml.Unmarshal(data, appConfig); err != nil {
			log.Printf("Warning: failed to parse config file %s: %v", path, err)
			appConfig = defaults()
		}
	})
	return appConfig
}
