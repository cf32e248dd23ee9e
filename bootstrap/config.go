package bootstrap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		HTTP      HTTP
		Log       Log
		DB        DB
		Pipeline  Pipeline
		Chain     Chain
		S3        S3
		Operators Operators
		Cron      Cron
	}

	HTTP struct {
		Address         string        `env:"HTTP_ADDRESS" envDefault:":8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	DB struct {
		Driver      string        `env:"DB_DRIVER" envDefault:"postgres"`
		URL         string        `env:"DB_URL,required,notEmpty"`
		Debug       bool          `env:"DB_DEBUG" envDefault:"false"`
		PingTimeout time.Duration `env:"DB_PING_TIMEOUT" envDefault:"5s"`
		Migrate     bool          `env:"DB_MIGRATE" envDefault:"true"`
	}

	Pipeline struct {
		ConfigFile       string `env:"PIPELINE_CONFIG_FILE"`
		SchedulerEnabled bool   `env:"PIPELINE_SCHEDULER_ENABLED" envDefault:"true"`
		// JobQueue routes scheduled sweeps through the go-job SQL queue.
		JobQueue       bool          `env:"PIPELINE_JOB_QUEUE" envDefault:"false"`
		JobWorker      bool          `env:"PIPELINE_JOB_WORKER" envDefault:"true"`
		JobMaxAttempts int           `env:"PIPELINE_JOB_MAX_ATTEMPTS" envDefault:"5"`
		JobRetryDelay  time.Duration `env:"PIPELINE_JOB_RETRY_DELAY" envDefault:"5s"`
		// ThrottleCacheTTL bounds how stale a cached receiver throttle may be.
		ThrottleCacheTTL time.Duration `env:"PIPELINE_THROTTLE_CACHE_TTL" envDefault:"5s"`
	}

	Chain struct {
		RPCURLs     map[string]string `env:"CHAIN_RPC_URLS,required" envKeyValSeparator:"="`
		OperatorKey string            `env:"OPERATOR_PRIVATE_KEY,required"`
	}

	S3 struct {
		Endpoint       string        `env:"S3_ENDPOINT,required"`
		Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
		Bucket         string        `env:"S3_BUCKET,required"`
		AccessKey      string        `env:"S3_ACCESS_KEY,required"`
		SecretKey      string        `env:"S3_SECRET_KEY,required"`
		UsePathStyle   bool          `env:"S3_USE_PATH_STYLE" envDefault:"true"`
		PublicURL      string        `env:"S3_PUBLIC_URL"`
		CfgLoadTimeout time.Duration `env:"S3_LOAD_CFG_TIMEOUT" envDefault:"10s"`
	}

	Operators struct {
		File     string        `env:"OPERATORS_FILE,required"`
		CacheTTL time.Duration `env:"OPERATORS_CACHE_TTL" envDefault:"5m"`
	}

	Cron struct {
		Secret string `env:"CRON_SECRET"`
	}
)

func NewConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if _, err := cfg.Chain.ChainRPCURLs(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}

// ChainRPCURLs parses CHAIN_RPC_URLS entries of the form chain_id=url.
func (c Chain) ChainRPCURLs() (map[int64]string, error) {
	out := make(map[int64]string, len(c.RPCURLs))
	keys := make([]string, 0, len(c.RPCURLs))
	for key := range c.RPCURLs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		chainID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || chainID <= 0 {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: invalid chain id %q", key)
		}
		out[chainID] = strings.TrimSpace(c.RPCURLs[key])
	}
	return out, nil
}

func (d DB) GetDebug() bool                { return d.Debug }
func (d DB) GetDriver() string             { return d.Driver }
func (d DB) GetServer() string             { return d.URL }
func (d DB) GetPingTimeout() time.Duration { return d.PingTimeout }
func (d DB) GetOtelIdentifier() string     { return "escrow-pipeline" }
