package gateway

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

type fakeProcessor struct {
	authorizeFn func(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	captureFn   func(ctx context.Context, intentRef string) (*CaptureResult, error)
	cancelFn    func(ctx context.Context, intentRef string) error
	refundFn    func(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error)
}

func (f *fakeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if f.authorizeFn != nil {
		return f.authorizeFn(ctx, req)
	}
	return &Authorization{IntentRef: "pi_fake", Status: "requires_capture"}, nil
}

func (f *fakeProcessor) Capture(ctx context.Context, intentRef string) (*CaptureResult, error) {
	if f.captureFn != nil {
		return f.captureFn(ctx, intentRef)
	}
	return &CaptureResult{IntentRef: intentRef, AmountCents: 10000}, nil
}

func (f *fakeProcessor) Cancel(ctx context.Context, intentRef string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, intentRef)
	}
	return nil
}

func (f *fakeProcessor) Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error) {
	if f.refundFn != nil {
		return f.refundFn(ctx, intentRef, amountCents)
	}
	return &RefundResult{RefundRef: "re_fake", AmountCents: 10000}, nil
}

func newTestGateway(t *testing.T, processor ProcessorClient) Gateway {
	t.Helper()
	gw, err := New(processor, config.EscrowConfig{
		GatewayTimeout:   time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
	}, nil, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}
	return gw
}

func authorizeRequest() AuthorizeRequest {
	return AuthorizeRequest{
		OrderID:     uuid.New(),
		BuyerID:     uuid.New(),
		AmountCents: 10000,
		Currency:    enums.CurrencyUSD,
	}
}

func TestGateway_AuthorizeValidation(t *testing.T) {
	gw := newTestGateway(t, &fakeProcessor{})

	req := authorizeRequest()
	req.AmountCents = 0
	if _, err := gw.Authorize(context.Background(), req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}

	req = authorizeRequest()
	req.Currency = enums.Currency("XXX")
	if _, err := gw.Authorize(context.Background(), req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad currency, got %v", err)
	}
}

func TestGateway_AuthorizeRetriesTransientFailures(t *testing.T) {
	attempts := 0
	processor := &fakeProcessor{
		authorizeFn: func(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
			attempts++
			if attempts < 3 {
				return nil, pkgerrors.New(pkgerrors.CodeGatewayTransient, "processor unavailable")
			}
			return &Authorization{IntentRef: "pi_after_retry", Status: "requires_capture"}, nil
		},
	}
	gw := newTestGateway(t, processor)

	auth, err := gw.Authorize(context.Background(), authorizeRequest())
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if auth.IntentRef != "pi_after_retry" {
		t.Fatalf("unexpected authorization: %+v", auth)
	}
}

func TestGateway_AuthorizeDoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	processor := &fakeProcessor{
		authorizeFn: func(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
			attempts++
			return nil, pkgerrors.New(pkgerrors.CodeGatewayPermanent, "card declined")
		},
	}
	gw := newTestGateway(t, processor)

	if _, err := gw.Authorize(context.Background(), authorizeRequest()); !pkgerrors.HasCode(err, pkgerrors.CodeGatewayPermanent) {
		t.Fatalf("expected permanent gateway error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent failure retried %d times", attempts)
	}
}

func TestGateway_AuthorizeExhaustsRetries(t *testing.T) {
	attempts := 0
	processor := &fakeProcessor{
		authorizeFn: func(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
			attempts++
			return nil, pkgerrors.New(pkgerrors.CodeGatewayTransient, "processor unavailable")
		},
	}
	gw := newTestGateway(t, processor)

	if _, err := gw.Authorize(context.Background(), authorizeRequest()); !pkgerrors.HasCode(err, pkgerrors.CodeGatewayTransient) {
		t.Fatalf("expected transient gateway error after exhaustion, got %v", err)
	}
	// Initial attempt plus the configured retries.
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
}

func TestGateway_CaptureRequiresIntentRef(t *testing.T) {
	gw := newTestGateway(t, &fakeProcessor{})
	if _, err := gw.Capture(context.Background(), "  "); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := gw.Cancel(context.Background(), ""); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := gw.Refund(context.Background(), "", 0); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGateway_RefundAmountValidation(t *testing.T) {
	gw := newTestGateway(t, &fakeProcessor{})
	if _, err := gw.Refund(context.Background(), "pi_settled", -1); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}
}

func TestGateway_RefundPassesPartialAmount(t *testing.T) {
	var gotAmount int64
	processor := &fakeProcessor{
		refundFn: func(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error) {
			gotAmount = amountCents
			return &RefundResult{RefundRef: "re_partial", AmountCents: amountCents}, nil
		},
	}
	gw := newTestGateway(t, processor)

	result, err := gw.Refund(context.Background(), "pi_settled", 2500)
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}
	if gotAmount != 2500 {
		t.Fatalf("processor received amount %d, want 2500", gotAmount)
	}
	if result.RefundRef != "re_partial" {
		t.Fatalf("unexpected refund: %+v", result)
	}
}

func TestGateway_CapturePassesThroughAlreadyCaptured(t *testing.T) {
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, intentRef string) (*CaptureResult, error) {
			return &CaptureResult{IntentRef: intentRef, AmountCents: 10000, AlreadyCaptured: true}, nil
		},
	}
	gw := newTestGateway(t, processor)

	result, err := gw.Capture(context.Background(), "pi_settled")
	if err != nil {
		t.Fatalf("Capture error: %v", err)
	}
	if !result.AlreadyCaptured {
		t.Fatal("expected AlreadyCaptured to be preserved")
	}
}
