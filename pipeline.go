package pipeline

import "github.com/goliatone/go-escrow-pipeline/core"

type Config = core.Config

type Option = core.Option

type Pipeline = core.Pipeline

type Logger = core.Logger

type EscrowClient = core.EscrowClient
type EscrowClientResolver = core.EscrowClientResolver
type OperatorDirectory = core.OperatorDirectory
type ResultProcessor = core.ResultProcessor
type PayoutExecutor = core.PayoutExecutor
type ReputationService = core.ReputationService
type StorageService = core.StorageService
type WebhookSender = core.WebhookSender

type WebhookPayload = core.WebhookPayload
type SweepJobType = core.SweepJobType
type SweepOutcome = core.SweepOutcome

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithEscrowClientResolver = core.WithEscrowClientResolver
	WithOperatorDirectory    = core.WithOperatorDirectory
	WithResultProcessor      = core.WithResultProcessor
	WithPayoutExecutor       = core.WithPayoutExecutor
	WithReputationService    = core.WithReputationService
	WithWebhookSender        = core.WithWebhookSender
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	return core.NewPipeline(cfg, opts...)
}
