// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultPath = "configs/config.yaml"

	BackendElasticsearch = "elasticsearch"
	BackendQdrant        = "qdrant"

	EmbedderOpenAI = "openai"
	EmbedderGemini = "gemini"
	EmbedderJina   = "jina"
)

var (
	ErrEmptyConfig = errors.New("config file is empty")

	ErrDatasetOutsideDir = errors.New("dataset path is outside the dataset directory")
)

// ConfigError reports a required configuration key that is missing or invalid.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config key '%s' %s", e.Key, e.Reason)
}

func missing(key string) error {
	return &ConfigError{Key: key, Reason: "is required"}
}

func invalid(key string, reason string) error {
	return &ConfigError{Key: key, Reason: reason}
}

type ServerConfig struct {
	ListenHost   string        `yaml:"listen_host"`
	ListenPort   int           `yaml:"listen_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// DatasetDir bounds the dataset paths accepted by the evaluation endpoint.
	// Empty means the working directory.
	DatasetDir string `yaml:"dataset_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ElasticConfig holds the search backend connection identity and credentials.
type ElasticConfig struct {
	CloudID    string        `yaml:"cloud_id"`
	Addresses  []string      `yaml:"addresses"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// HyperparamsConfig holds the pipeline hyperparameters.
type HyperparamsConfig struct {
	ModelCheckpoint string `yaml:"model_checkpoint"`
	ContextSize     *int   `yaml:"context_size"`
	IndexName       string `yaml:"index_name"`

	// QAThreshold is kept as written in the file, see [HyperparamsConfig.Threshold].
	QAThreshold string `yaml:"qa_threshold"`
	TextField   string `yaml:"text_field"`
}

// Threshold returns the parsed decision threshold. Load guarantees it parses.
func (h HyperparamsConfig) Threshold() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(h.QAThreshold), 64)
	return v
}

// Size returns the number of passages retrieved per question.
func (h HyperparamsConfig) Size() int {
	if h.ContextSize == nil {
		return 0
	}
	return *h.ContextSize
}

type RetrieverConfig struct {
	Backend string `yaml:"backend"`
}

type QdrantConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	APIKey       string `yaml:"api_key"`
	UseTLS       bool   `yaml:"use_tls"`
	PayloadField string `yaml:"payload_field"`
}

type EmbedderConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`

	// Endpoint overrides the API base URL of REST providers.
	Endpoint string `yaml:"endpoint"`
}

type ReaderConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	// MetricsPort serves /metrics from the worker when set.
	MetricsPort int `yaml:"metrics_port"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	Elastic     ElasticConfig     `yaml:"elastic"`
	Hyperparams HyperparamsConfig `yaml:"hyperparams"`

	Retriever RetrieverConfig `yaml:"retriever"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Reader    ReaderConfig    `yaml:"reader"`

	Transport RedisConfig  `yaml:"transport"`
	Worker    WorkerConfig `yaml:"worker"`
}

// Load reads the config file at path, expanding ${VAR} references from the
// environment. A .env file next to the working directory is loaded first if present.
// Every missing or invalid required key is reported as a [*ConfigError].
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(file)
}

// Parse decodes and validates a config document.
func Parse(data []byte) (*Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyConfig
	}

	var conf Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	conf.setDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Elastic.Timeout == 0 {
		c.Elastic.Timeout = 10 * time.Second
	}
	if c.Hyperparams.TextField == "" {
		c.Hyperparams.TextField = "context"
	}

	if c.Retriever.Backend == "" {
		c.Retriever.Backend = BackendElasticsearch
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Qdrant.PayloadField == "" {
		c.Qdrant.PayloadField = "text"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = EmbedderOpenAI
	}

	if c.Reader.Endpoint == "" {
		c.Reader.Endpoint = "https://api-inference.huggingface.co"
	}
	if c.Reader.Timeout == 0 {
		c.Reader.Timeout = 30 * time.Second
	}
	if c.Reader.MaxRetries == 0 {
		c.Reader.MaxRetries = 3
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
}

// Validate checks that all required keys are present.
func (c *Config) Validate() error {
	var errs []error

	h := c.Hyperparams
	if h.ModelCheckpoint == "" {
		errs = append(errs, missing("hyperparams.model_checkpoint"))
	}
	if h.IndexName == "" {
		errs = append(errs, missing("hyperparams.index_name"))
	}
	if h.ContextSize == nil {
		errs = append(errs, missing("hyperparams.context_size"))
	} else if *h.ContextSize < 0 {
		errs = append(errs, invalid("hyperparams.context_size", "must not be negative"))
	}
	if strings.TrimSpace(h.QAThreshold) == "" {
		errs = append(errs, missing("hyperparams.qa_threshold"))
	} else if v, err := strconv.ParseFloat(strings.TrimSpace(h.QAThreshold), 64); err != nil {
		errs = append(errs, invalid("hyperparams.qa_threshold", "must be a float"))
	} else if math.IsNaN(v) || math.IsInf(v, 0) {
		errs = append(errs, invalid("hyperparams.qa_threshold", "must be a finite number"))
	}

	switch c.Retriever.Backend {
	case BackendElasticsearch:
		e := c.Elastic
		if e.CloudID == "" && len(e.Addresses) == 0 {
			errs = append(errs, missing("elastic.cloud_id"))
		}
		if e.CloudID != "" && len(e.Addresses) > 0 {
			errs = append(errs, invalid("elastic.addresses", "must not be set together with elastic.cloud_id"))
		}
		if e.User != "" && e.Password == "" {
			errs = append(errs, missing("elastic.password"))
		}
		if e.MaxRetries < 0 {
			errs = append(errs, invalid("elastic.max_retries", "must not be negative"))
		}
	case BackendQdrant:
		switch c.Embedder.Provider {
		case EmbedderOpenAI, EmbedderGemini, EmbedderJina:
		default:
			errs = append(errs, invalid("embedder.provider", fmt.Sprintf("unknown provider '%s'", c.Embedder.Provider)))
		}
	default:
		errs = append(errs, invalid("retriever.backend", fmt.Sprintf("unknown backend '%s'", c.Retriever.Backend)))
	}

	if p := c.Worker.MetricsPort; p < 0 || p > 65535 {
		errs = append(errs, invalid("worker.metrics_port", "must be a valid port"))
	}

	return errors.Join(errs...)
}

// DatasetPath resolves path against server.dataset_dir. Paths that leave
// the directory are rejected with [ErrDatasetOutsideDir].
func (c *Config) DatasetPath(path string) (string, error) {
	dir := c.Server.DatasetDir
	if dir == "" {
		dir = "."
	}

	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(dir, path)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absDir, absFull)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s'", ErrDatasetOutsideDir, path)
	}
	return filepath.Join(dir, rel), nil
}

// RequireTransport reports a [*ConfigError] if no task transport is configured.
func (c *Config) RequireTransport() error {
	if c.Transport.Addr == "" {
		return missing("transport.addr")
	}
	return nil
}
