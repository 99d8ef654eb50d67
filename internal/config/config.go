package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	DefaultListen     = ":8080"
	DefaultURLColumn  = "URL"
	DefaultNameColumn = "Filename"
	DefaultChunkSize  = 8192
	DefaultTimeout    = 15 * time.Second
	DefaultUserAgent  = "imgfetch"
	DefaultLogTail    = 1000

	envListen     = "IMGFETCH_LISTEN"
	envLogLevel   = "IMGFETCH_LOG_LEVEL"
	envRedisURL   = "IMGFETCH_REDIS_URL"
	envDataset    = "IMGFETCH_DATASET"
	envOutputDir  = "IMGFETCH_OUTPUT_DIR"
	envURLColumn  = "IMGFETCH_URL_COLUMN"
	envNameColumn = "IMGFETCH_NAME_COLUMN"
)

// RunConfig holds everything a single batch run needs. All fields must be
// non-empty before a run starts; the runner validates them at setup.
type RunConfig struct {
	DatasetPath string `yaml:"dataset"`
	OutputDir   string `yaml:"output_dir"`
	URLColumn   string `yaml:"url_column"`
	NameColumn  string `yaml:"name_column"`
}

// Duration parses yaml values like "15s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("cannot parse duration: %w", err)
	}

	*d = Duration(val)

	return nil
}

type FetcherConfig struct {
	Timeout   Duration `yaml:"timeout"`
	ChunkSize int      `yaml:"chunk_size"`
	UserAgent string   `yaml:"user_agent"`
}

type Config struct {
	Listen   string        `yaml:"listen"`
	LogLevel string        `yaml:"log_level"`
	RedisURL string        `yaml:"redis_url"`
	LogTail  int           `yaml:"log_tail"`
	Run      RunConfig     `yaml:"run"`
	Fetcher  FetcherConfig `yaml:"fetcher"`
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.LogTail < 1 {
		c.LogTail = DefaultLogTail
	}
	if c.Run.URLColumn == "" {
		c.Run.URLColumn = DefaultURLColumn
	}
	if c.Run.NameColumn == "" {
		c.Run.NameColumn = DefaultNameColumn
	}
	if c.Fetcher.Timeout <= 0 {
		c.Fetcher.Timeout = Duration(DefaultTimeout)
	}
	if c.Fetcher.ChunkSize < 1 {
		c.Fetcher.ChunkSize = DefaultChunkSize
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = DefaultUserAgent
	}
}

func (c *Config) applyEnv() {
	for _, ov := range []struct {
		env string
		dst *string
	}{
		{envListen, &c.Listen},
		{envLogLevel, &c.LogLevel},
		{envRedisURL, &c.RedisURL},
		{envDataset, &c.Run.DatasetPath},
		{envOutputDir, &c.Run.OutputDir},
		{envURLColumn, &c.Run.URLColumn},
		{envNameColumn, &c.Run.NameColumn},
	} {
		if val, exists := os.LookupEnv(ov.env); exists {
			*ov.dst = val
		}
	}
}

func Load(fileName string) (*Config, error) {
	// A missing .env is fine, values may come from the config file.
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(fileName)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.SetDefaults()

	return &cfg, nil
}

func MustLoad(fileName string) *Config {
	cfg, err := Load(fileName)
	if err != nil {
		panic(err)
	}

	return cfg
}
