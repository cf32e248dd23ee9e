package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxRetries int `koanf:"max_retries" mapstructure:"max_retries"`
	BatchSize  int `koanf:"batch_size" mapstructure:"batch_size"`
}

type QueueConfig struct {
	Backoff   string        `koanf:"backoff" mapstructure:"backoff"`
	BaseDelay time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay  time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
}

type QueuesConfig struct {
	IncomingWebhooks  QueueConfig `koanf:"incoming_webhooks" mapstructure:"incoming_webhooks"`
	EscrowCompletions QueueConfig `koanf:"escrow_completions" mapstructure:"escrow_completions"`
	OutgoingWebhooks  QueueConfig `koanf:"outgoing_webhooks" mapstructure:"outgoing_webhooks"`
}

type WebhooksConfig struct {
	Timeout         time.Duration `koanf:"timeout" mapstructure:"timeout"`
	SignatureHeader string        `koanf:"signature_header" mapstructure:"signature_header"`
}

type SchedulerConfig struct {
	Disabled     bool          `koanf:"disabled" mapstructure:"disabled"`
	Interval     string        `koanf:"interval" mapstructure:"interval"`
	SweepTimeout time.Duration `koanf:"sweep_timeout" mapstructure:"sweep_timeout"`
}

type ChainConfig struct {
	GasPriceMultiplier float64 `koanf:"gas_price_multiplier" mapstructure:"gas_price_multiplier"`
	GasLimit           uint64  `koanf:"gas_limit" mapstructure:"gas_limit"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Queues      QueuesConfig    `koanf:"queues" mapstructure:"queues"`
	Webhooks    WebhooksConfig  `koanf:"webhooks" mapstructure:"webhooks"`
	Scheduler   SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
	Chain       ChainConfig     `koanf:"chain" mapstructure:"chain"`
}

const DefaultSignatureHeader = "human-signature"

func DefaultConfig() Config {
	return Config{
		ServiceName: "reputation-oracle",
		Retry: RetryConfig{
			MaxRetries: 5,
			BatchSize:  100,
		},
		Queues: QueuesConfig{
			IncomingWebhooks:  QueueConfig{Backoff: string(BackoffImmediate)},
			EscrowCompletions: QueueConfig{Backoff: string(BackoffImmediate)},
			OutgoingWebhooks: QueueConfig{
				Backoff:   string(BackoffExponential),
				BaseDelay: 30 * time.Second,
				MaxDelay:  30 * time.Minute,
			},
		},
		Webhooks: WebhooksConfig{
			Timeout:         10 * time.Second,
			SignatureHeader: DefaultSignatureHeader,
		},
		Scheduler: SchedulerConfig{
			Interval:     "@every 10s",
			SweepTimeout: 5 * time.Minute,
		},
		Chain: ChainConfig{
			GasPriceMultiplier: 1,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must be >= 0")
	}
	if c.Retry.BatchSize <= 0 {
		return fmt.Errorf("core: retry.batch_size must be > 0")
	}
	for name, queue := range map[string]QueueConfig{
		"incoming_webhooks":  c.Queues.IncomingWebhooks,
		"escrow_completions": c.Queues.EscrowCompletions,
		"outgoing_webhooks":  c.Queues.OutgoingWebhooks,
	} {
		if err := queue.validate(); err != nil {
			return fmt.Errorf("core: queues.%s: %w", name, err)
		}
	}
	if c.Webhooks.Timeout <= 0 {
		return fmt.Errorf("core: webhooks.timeout must be > 0")
	}
	if strings.TrimSpace(c.Webhooks.SignatureHeader) == "" {
		return fmt.Errorf("core: webhooks.signature_header is required")
	}
	if !c.Scheduler.Disabled && strings.TrimSpace(c.Scheduler.Interval) == "" {
		return fmt.Errorf("core: scheduler.interval is required unless the scheduler is disabled")
	}
	if c.Chain.GasPriceMultiplier < 0 {
		return fmt.Errorf("core: chain.gas_price_multiplier must be >= 0")
	}
	return nil
}

func (q QueueConfig) validate() error {
	switch BackoffStrategy(strings.ToLower(strings.TrimSpace(q.Backoff))) {
	case BackoffImmediate:
		return nil
	case BackoffExponential:
		if q.BaseDelay <= 0 {
			return fmt.Errorf("base_delay must be > 0 for exponential backoff")
		}
		if q.MaxDelay > 0 && q.MaxDelay < q.BaseDelay {
			return fmt.Errorf("max_delay must be >= base_delay")
		}
		return nil
	default:
		return fmt.Errorf("unsupported backoff %q", q.Backoff)
	}
}

// RetryPolicyFor builds the retry policy a queue runs under.
func (c Config) RetryPolicyFor(queue QueueConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		Strategy:   BackoffStrategy(strings.ToLower(strings.TrimSpace(queue.Backoff))),
		BaseDelay:  queue.BaseDelay,
		MaxDelay:   queue.MaxDelay,
	}
}

func (c Config) TxOptions() TxOptions {
	return TxOptions{
		GasPriceMultiplier: c.Chain.GasPriceMultiplier,
		GasLimit:           c.Chain.GasLimit,
	}
}
