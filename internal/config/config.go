package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database  *dbConfig
	Service   *svcConfig
	Queue     *QueueConfig
	Agent     *AgentConfig
	Rebuilder *RebuilderConfig
	Artifacts *ArtifactsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"buildserver"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"BUILDSERVER_ADDRESS" default:":8000"`
	MetricsAddress  string `envconfig:"BUILDSERVER_METRICS_ADDRESS" default:":8080"`
	LogLevel        string `envconfig:"BUILDSERVER_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"BUILDSERVER_MIGRATIONS_FOLDER" default:""`
	// ListLimit is the page size used when a listing request does not ask for one.
	ListLimit int `envconfig:"BUILDSERVER_LIST_LIMIT" default:"10"`
}

// QueueConfig holds the broker coordinates shared by the API (producer) and the agent (consumer).
type QueueConfig struct {
	Host           string        `envconfig:"RABBITMQ_HOST" default:"rabbitmq"`
	Port           int           `envconfig:"RABBITMQ_PORT" default:"5672"`
	User           string        `envconfig:"RABBITMQ_USER" default:"guest"`
	Password       string        `envconfig:"RABBITMQ_PASSWORD" default:"guest"`
	VHost          string        `envconfig:"RABBITMQ_VHOST" default:"/"`
	Name           string        `envconfig:"BUILDSERVER_QUEUE" default:"build_jobs"`
	ArtifactQueue  string        `envconfig:"BUILDSERVER_ARTIFACT_QUEUE" default:"build_artifacts"`
	ReconnectDelay time.Duration `envconfig:"RABBITMQ_RECONNECT_DELAY" default:"5s"`
}

type AgentConfig struct {
	Address         string        `envconfig:"AGENT_ADDRESS" default:":3333"`
	MaxWorkers      int           `envconfig:"AGENT_MAX_WORKERS" default:"4"`
	APIServer       string        `envconfig:"APISERVER_HOST" default:"http://localhost:8000"`
	StatusTimeout   time.Duration `envconfig:"AGENT_STATUS_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"AGENT_SHUTDOWN_TIMEOUT" default:"30s"`
	BuildCommand    string        `envconfig:"BUILD_CMD" default:"make"`
	WorkDir         string        `envconfig:"BUILD_WORK_DIR" default:""`
	BuildTimeout    time.Duration `envconfig:"BUILD_TIMEOUT" default:"30m"`
	CloneTimeout    time.Duration `envconfig:"CLONE_TIMEOUT" default:"5m"`
	GitBinary       string        `envconfig:"GIT_BINARY" default:"git"`
}

type RebuilderConfig struct {
	// SleepFor is the period between two check passes.
	SleepFor time.Duration `envconfig:"SLEEP_FOR" default:"900s"`
	// Timeout bounds a whole check pass, not a single repository.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"60s"`
}

type ArtifactsConfig struct {
	Store    string `envconfig:"ARTIFACT_STORE" default:"fs"`
	Root     string `envconfig:"ARTIFACT_REPOSITORY_ROOT" default:""`
	Denylist string `envconfig:"ARTIFACT_DENYLIST" default:"^(Makefile|.*\\.(c|h))$"`
	S3       S3Config
}

type S3Config struct {
	Endpoint  string `envconfig:"ARTIFACT_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"ARTIFACT_S3_BUCKET" default:"artifacts"`
	AccessKey string `envconfig:"ARTIFACT_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"ARTIFACT_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"ARTIFACT_S3_USE_SSL" default:"false"`
}

// New reads the configuration from the environment.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault returns the configuration built from the default tags only,
// ignoring the environment. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			defer os.Setenv(key, v)
			_ = os.Unsetenv(key)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		panic(fmt.Errorf("internal error: default configuration: %w", err))
	}
	return cfg
}

var envKeys = []string{
	"DB_TYPE", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASS",
	"BUILDSERVER_ADDRESS", "BUILDSERVER_METRICS_ADDRESS", "BUILDSERVER_LOG_LEVEL",
	"BUILDSERVER_MIGRATIONS_FOLDER", "BUILDSERVER_LIST_LIMIT",
	"RABBITMQ_HOST", "RABBITMQ_PORT", "RABBITMQ_USER", "RABBITMQ_PASSWORD", "RABBITMQ_VHOST",
	"BUILDSERVER_QUEUE", "BUILDSERVER_ARTIFACT_QUEUE", "RABBITMQ_RECONNECT_DELAY",
	"AGENT_ADDRESS", "AGENT_MAX_WORKERS", "APISERVER_HOST", "AGENT_STATUS_TIMEOUT", "AGENT_SHUTDOWN_TIMEOUT",
	"BUILD_CMD", "BUILD_WORK_DIR", "BUILD_TIMEOUT", "CLONE_TIMEOUT", "GIT_BINARY",
	"SLEEP_FOR", "TIMEOUT",
	"ARTIFACT_STORE", "ARTIFACT_REPOSITORY_ROOT", "ARTIFACT_DENYLIST",
	"ARTIFACT_S3_ENDPOINT", "ARTIFACT_S3_BUCKET", "ARTIFACT_S3_ACCESS_KEY", "ARTIFACT_S3_SECRET_KEY", "ARTIFACT_S3_USE_SSL",
}

func (c *Config) Validate() error {
	var errs []error
	if c.Service.ListLimit <= 0 {
		errs = append(errs, fmt.Errorf("BUILDSERVER_LIST_LIMIT must be positive, got %d", c.Service.ListLimit))
	}
	if c.Queue.Name == "" || c.Queue.ArtifactQueue == "" {
		errs = append(errs, errors.New("BUILDSERVER_QUEUE and BUILDSERVER_ARTIFACT_QUEUE must not be empty"))
	} else if c.Queue.Name == c.Queue.ArtifactQueue {
		errs = append(errs, errors.New("BUILDSERVER_QUEUE and BUILDSERVER_ARTIFACT_QUEUE must differ"))
	}
	if c.Queue.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("RABBITMQ_RECONNECT_DELAY must be positive, got %s", c.Queue.ReconnectDelay))
	}
	if c.Agent.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_MAX_WORKERS must be positive, got %d", c.Agent.MaxWorkers))
	}
	if c.Rebuilder.SleepFor <= 0 {
		errs = append(errs, fmt.Errorf("SLEEP_FOR must be positive, got %s", c.Rebuilder.SleepFor))
	}
	if c.Rebuilder.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("TIMEOUT must be positive, got %s", c.Rebuilder.Timeout))
	}
	switch c.Artifacts.Store {
	case "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("ARTIFACT_STORE must be one of fs, s3: got %q", c.Artifacts.Store))
	}
	return errors.Join(errs...)
}

// URL returns the AMQP url of the broker.
func (q *QueueConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(q.User, q.Password),
		Host:   fmt.Sprintf("%s:%d", q.Host, q.Port),
	}
	if q.VHost != "" && q.VHost != "/" {
		u.Path = "/" + q.VHost
	}
	return u.String()
}

// String renders the configuration with the secrets masked.
func (c *Config) String() string {
	masked := *c
	db := *c.Database
	db.Password = "*****"
	masked.Database = &db
	q := *c.Queue
	q.Password = "*****"
	masked.Queue = &q
	a := *c.Artifacts
	a.S3.SecretKey = "*****"
	masked.Artifacts = &a

	val, _ := json.Marshal(masked)
	return string(val)
}
