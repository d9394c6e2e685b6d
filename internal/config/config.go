package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config хранит параметры Compass, хранилища, уведомлений и расписания синхронизации.
type Config struct {
	Compass  CompassConfig  `json:"compass"`
	Storage  StorageConfig  `json:"storage"`
	Blobs    BlobConfig     `json:"blobs"`
	Notify   NotifyConfig   `json:"notify"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	Schedule string         `json:"schedule"`
	HTTPAddr string         `json:"http_addr"`
}

// CompassConfig описывает школьный сервер Compass и учётные данные.
type CompassConfig struct {
	Hostname       string `json:"hostname"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
}

// StorageConfig выбирает драйвер хранилища записей: file, sqlite или postgres.
// Path - каталог, файл базы sqlite или строка подключения PostgreSQL.
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	BusyTimeoutMS int    `json:"busy_timeout_ms"`
}

// BlobConfig выбирает хранилище содержимого вложений. Пустой Driver - то же, что Storage.
type BlobConfig struct {
	Driver    string `json:"driver"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

type NotifyConfig struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
}

type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

const (
	defaultTimeoutSeconds = 30
	defaultMaxRetries     = 3
	defaultStorageDriver  = "file"
	defaultStoragePath    = "./data"
	defaultQueue          = "compass_notifications"
)

var (
	storageDrivers = map[string]bool{"file": true, "sqlite": true, "postgres": true}
	blobDrivers    = map[string]bool{"": true, "minio": true}
)

// Validate проверяет обязательные поля, драйверы, расписание и адрес RabbitMQ.
func (cfg *Config) Validate() error {
	if cfg.Compass.Hostname == "" && cfg.Compass.BaseURL == "" {
		return errors.New("compass hostname is required")
	}
	if cfg.Compass.Username == "" || cfg.Compass.Password == "" {
		return errors.New("compass credentials are required")
	}
	if cfg.Compass.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Compass.BaseURL); err != nil {
			return fmt.Errorf("invalid compass base URL: %s", cfg.Compass.BaseURL)
		}
	}
	if !storageDrivers[cfg.Storage.Driver] {
		return fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Path == "" {
		return errors.New("storage path is required")
	}
	if !blobDrivers[cfg.Blobs.Driver] {
		return fmt.Errorf("unknown blob driver: %s", cfg.Blobs.Driver)
	}
	if cfg.Blobs.Driver == "minio" && (cfg.Blobs.Endpoint == "" || cfg.Blobs.Bucket == "") {
		return errors.New("minio blob storage requires endpoint and bucket")
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}
	if cfg.RabbitMQ.URL != "" {
		u, err := url.Parse(cfg.RabbitMQ.URL)
		if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
			return fmt.Errorf("invalid RabbitMQ URL: %s", cfg.RabbitMQ.URL)
		}
	}
	if len(cfg.Notify.Recipients) > 0 && cfg.Notify.Sender == "" {
		return errors.New("notify sender is required when recipients are set")
	}
	return nil
}

// LoadConfig читает JSON-файл по пути path, накладывает переменные окружения
// (включая .env, если он есть) и заполняет значения по умолчанию.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"COMPASS_HOSTNAME", &cfg.Compass.Hostname},
		{"COMPASS_USERNAME", &cfg.Compass.Username},
		{"COMPASS_PASSWORD", &cfg.Compass.Password},
		{"STORAGE_DRIVER", &cfg.Storage.Driver},
		{"STORAGE_PATH", &cfg.Storage.Path},
		{"RABBITMQ_URL", &cfg.RabbitMQ.URL},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Compass.TimeoutSeconds <= 0 {
		cfg.Compass.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.Compass.MaxRetries <= 0 {
		cfg.Compass.MaxRetries = defaultMaxRetries
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultStorageDriver
	}
	if cfg.Storage.Path == "" && cfg.Storage.Driver == "file" {
		cfg.Storage.Path = defaultStoragePath
	}
	cfg.Blobs.Driver = strings.ToLower(strings.TrimSpace(cfg.Blobs.Driver))
	if cfg.RabbitMQ.URL != "" && cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = defaultQueue
	}
}
