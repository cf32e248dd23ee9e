package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/inbound"
)

type Handlers struct {
	Webhooks gocmd.Commander[command.AcceptWebhookMessage]
	Sweeps   gocmd.Commander[command.RunSweepMessage]
	// CronSecret guards the external sweep trigger. An empty secret disables
	// the route.
	CronSecret      string
	SignatureHeader string
}

type webhookResponse struct {
	Accepted bool `json:"accepted"`
	Deduped  bool `json:"deduped"`
}

type sweepResponse struct {
	JobType    string `json:"job_type"`
	Skipped    bool   `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
}

func Register(router fiber.Router, h Handlers) {
	header := strings.TrimSpace(h.SignatureHeader)
	if header == "" {
		header = core.DefaultSignatureHeader
	}

	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.Webhooks != nil {
		router.Post("/webhook", func(c *fiber.Ctx) error {
			collector := gocmd.NewResult[inbound.AcceptResult]()
			ctx := gocmd.ContextWithResult(c.UserContext(), collector)
			err := h.Webhooks.Execute(ctx, command.AcceptWebhookMessage{
				Body:      append([]byte(nil), c.Body()...),
				Signature: c.Get(header),
			})
			if err != nil {
				return writeError(c, err)
			}
			result, _ := collector.Load()
			return c.Status(http.StatusAccepted).JSON(webhookResponse{
				Accepted: result.Accepted,
				Deduped:  result.Deduped,
			})
		})
	}

	if h.Sweeps != nil && strings.TrimSpace(h.CronSecret) != "" {
		router.Get("/cron/:job/process", bearerGuard(h.CronSecret), func(c *fiber.Ctx) error {
			collector := gocmd.NewResult[core.SweepOutcome]()
			ctx := gocmd.ContextWithResult(c.UserContext(), collector)
			if err := h.Sweeps.Execute(ctx, command.RunSweepMessage{JobType: c.Params("job")}); err != nil {
				return writeError(c, err)
			}
			outcome, _ := collector.Load()
			return c.JSON(sweepResponse{
				JobType:    string(outcome.JobType),
				Skipped:    outcome.Skipped,
				DurationMS: outcome.Duration.Milliseconds(),
			})
		})
	}
}

func bearerGuard(secret string) fiber.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *fiber.Ctx) error {
		token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), expected) != 1 {
			return writeError(c, unauthorized("invalid cron secret"))
		}
		return c.Next()
	}
}
