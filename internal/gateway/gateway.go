package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/atelierworks/atelier-backend/pkg/config"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
)

// Gateway is the escrow-facing wrapper around the payment processor. It owns
// timeouts, retry of transient failures and call metrics; callers only see
// classified errors.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, intentRef string) (*CaptureResult, error)
	Cancel(ctx context.Context, intentRef string) error
	Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error)
}

type gateway struct {
	processor ProcessorClient
	cfg       config.EscrowConfig
	metrics   *metrics.GatewayMetrics
	logg      *logger.Logger
}

// New wires a gateway around the provided processor client.
func New(processor ProcessorClient, cfg config.EscrowConfig, gm *metrics.GatewayMetrics, logg *logger.Logger) (Gateway, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	return &gateway{processor: processor, cfg: cfg, metrics: gm, logg: logg}, nil
}

func (g *gateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization amount must be positive")
	}
	if !req.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	var auth *Authorization
	err := g.call(ctx, "authorize", func(ctx context.Context) error {
		var callErr error
		auth, callErr = g.processor.Authorize(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

func (g *gateway) Capture(ctx context.Context, intentRef string) (*CaptureResult, error) {
	if strings.TrimSpace(intentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}

	var result *CaptureResult
	err := g.call(ctx, "capture", func(ctx context.Context) error {
		var callErr error
		result, callErr = g.processor.Capture(ctx, intentRef)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyCaptured {
		g.logg.Info(g.logg.WithIntentRef(ctx, intentRef), "capture was already settled at the processor")
	}
	return result, nil
}

func (g *gateway) Cancel(ctx context.Context, intentRef string) error {
	if strings.TrimSpace(intentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}
	return g.call(ctx, "cancel", func(ctx context.Context) error {
		return g.processor.Cancel(ctx, intentRef)
	})
}

// Refund reverses a prior capture. A zero amount refunds the full capture;
// a positive amount refunds that much.
func (g *gateway) Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error) {
	if strings.TrimSpace(intentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent ref is required")
	}
	if amountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}

	var result *RefundResult
	err := g.call(ctx, "refund", func(ctx context.Context) error {
		var callErr error
		result, callErr = g.processor.Refund(ctx, intentRef, amountCents)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// call runs one gateway command with a per-attempt timeout, retrying only
// transient failures with exponential backoff.
func (g *gateway) call(ctx context.Context, command string, fn func(ctx context.Context) error) error {
	start := time.Now()
	backoff := retry.WithMaxRetries(g.cfg.RetryMaxAttempts, retry.NewExponential(g.cfg.RetryBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.GatewayTimeout)
		defer cancel()

		if err := fn(attemptCtx); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeGatewayTransient) {
				g.logg.Warn(g.logg.WithField(ctx, "command", command), "transient processor failure, will retry")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})

	g.metrics.ObserveCall(command, outcomeLabel(err), time.Since(start))
	if err != nil {
		g.logg.Error(g.logg.WithField(ctx, "command", command), "gateway command failed", err)
	}
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case pkgerrors.HasCode(err, pkgerrors.CodeGatewayTransient):
		return "transient_error"
	case pkgerrors.HasCode(err, pkgerrors.CodeGatewayPermanent):
		return "permanent_error"
	default:
		return "error"
	}
}
