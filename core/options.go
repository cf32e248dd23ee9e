package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type pipelineBuilder struct {
	runtimeConfig     Config
	resolvedConfig    *Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	escrowCompletions EscrowCompletionStore
	incomingWebhooks  IncomingWebhookStore
	outgoingWebhooks  OutgoingWebhookStore
	sweepLocks        SweepLockStore
	escrows           EscrowClientResolver
	operators         OperatorDirectory
	results           ResultProcessor
	payouts           PayoutExecutor
	reputation        ReputationService
	sender            WebhookSender
	now               func() time.Time
}

type Option func(*pipelineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *pipelineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *pipelineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *pipelineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *pipelineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *pipelineBuilder) {
		b.optionsResolver = resolver
	}
}

func WithEscrowCompletionStore(store EscrowCompletionStore) Option {
	return func(b *pipelineBuilder) {
		b.escrowCompletions = store
	}
}

func WithIncomingWebhookStore(store IncomingWebhookStore) Option {
	return func(b *pipelineBuilder) {
		b.incomingWebhooks = store
	}
}

func WithOutgoingWebhookStore(store OutgoingWebhookStore) Option {
	return func(b *pipelineBuilder) {
		b.outgoingWebhooks = store
	}
}

func WithSweepLockStore(store SweepLockStore) Option {
	return func(b *pipelineBuilder) {
		b.sweepLocks = store
	}
}

func WithEscrowClientResolver(resolver EscrowClientResolver) Option {
	return func(b *pipelineBuilder) {
		b.escrows = resolver
	}
}

func WithOperatorDirectory(directory OperatorDirectory) Option {
	return func(b *pipelineBuilder) {
		b.operators = directory
	}
}

func WithResultProcessor(processor ResultProcessor) Option {
	return func(b *pipelineBuilder) {
		b.results = processor
	}
}

func WithPayoutExecutor(executor PayoutExecutor) Option {
	return func(b *pipelineBuilder) {
		b.payouts = executor
	}
}

func WithReputationService(service ReputationService) Option {
	return func(b *pipelineBuilder) {
		b.reputation = service
	}
}

func WithWebhookSender(sender WebhookSender) Option {
	return func(b *pipelineBuilder) {
		b.sender = sender
	}
}

// WithResolvedConfig hands NewPipeline a config that already went through
// ResolveOptions so the layers are not merged twice.
func WithResolvedConfig(cfg Config) Option {
	return func(b *pipelineBuilder) {
		b.resolvedConfig = &cfg
	}
}

// WithClock overrides time.Now for every service built by the pipeline.
func WithClock(now func() time.Time) Option {
	return func(b *pipelineBuilder) {
		b.now = now
	}
}

// Logger and provider stay nil so glog.Resolve can fall back to whichever
// one the caller sets.
func defaultPipelineBuilder(runtime Config) pipelineBuilder {
	return pipelineBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// YAMLConfigLoader reads the raw config tree from a YAML file. A missing
// file yields an empty tree so defaults apply.
type YAMLConfigLoader struct {
	Path string
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveOptions resolves the runtime config with the provider and resolver
// carried by opts.
func ResolveOptions(ctx context.Context, runtime Config, opts ...Option) (Config, error) {
	builder := defaultPipelineBuilder(runtime)
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}
	return builder.resolve(ctx)
}

func (b pipelineBuilder) resolve(ctx context.Context) (Config, error) {
	if b.resolvedConfig != nil {
		cfg := *b.resolvedConfig
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return ResolveConfig(ctx, b.configProvider, b.optionsResolver, b.runtimeConfig)
}

// ResolveConfig runs defaults, the provider's loaded config and runtime
// overrides through the resolver, in that precedence order.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxRetries > 0 {
		retry["max_retries"] = cfg.Retry.MaxRetries
	}
	if includeZero || cfg.Retry.BatchSize > 0 {
		retry["batch_size"] = cfg.Retry.BatchSize
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	queues := map[string]any{}
	for name, queue := range map[string]QueueConfig{
		"incoming_webhooks":  cfg.Queues.IncomingWebhooks,
		"escrow_completions": cfg.Queues.EscrowCompletions,
		"outgoing_webhooks":  cfg.Queues.OutgoingWebhooks,
	} {
		if entry := queueToLayerMap(queue, includeZero); len(entry) > 0 {
			queues[name] = entry
		}
	}
	if len(queues) > 0 {
		layer["queues"] = queues
	}

	webhooks := map[string]any{}
	if includeZero || cfg.Webhooks.Timeout > 0 {
		webhooks["timeout"] = cfg.Webhooks.Timeout
	}
	if includeZero || strings.TrimSpace(cfg.Webhooks.SignatureHeader) != "" {
		webhooks["signature_header"] = cfg.Webhooks.SignatureHeader
	}
	if len(webhooks) > 0 {
		layer["webhooks"] = webhooks
	}

	scheduler := map[string]any{}
	if includeZero || cfg.Scheduler.Disabled {
		scheduler["disabled"] = cfg.Scheduler.Disabled
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.Interval) != "" {
		scheduler["interval"] = cfg.Scheduler.Interval
	}
	if includeZero || cfg.Scheduler.SweepTimeout > 0 {
		scheduler["sweep_timeout"] = cfg.Scheduler.SweepTimeout
	}
	if len(scheduler) > 0 {
		layer["scheduler"] = scheduler
	}

	chain := map[string]any{}
	if includeZero || cfg.Chain.GasPriceMultiplier > 0 {
		chain["gas_price_multiplier"] = cfg.Chain.GasPriceMultiplier
	}
	if includeZero || cfg.Chain.GasLimit > 0 {
		chain["gas_limit"] = cfg.Chain.GasLimit
	}
	if len(chain) > 0 {
		layer["chain"] = chain
	}
	return layer
}

func queueToLayerMap(queue QueueConfig, includeZero bool) map[string]any {
	entry := map[string]any{}
	if includeZero || strings.TrimSpace(queue.Backoff) != "" {
		entry["backoff"] = queue.Backoff
	}
	if includeZero || queue.BaseDelay > 0 {
		entry["base_delay"] = queue.BaseDelay
	}
	if includeZero || queue.MaxDelay > 0 {
		entry["max_delay"] = queue.MaxDelay
	}
	return entry
}
