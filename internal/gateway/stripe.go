package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

// stripeProcessor implements ProcessorClient over an injected Stripe client.
// Holds are placed with manual capture so funds stay reserved until the buyer
// accepts delivery.
type stripeProcessor struct {
	api *client.API
}

// NewStripeProcessor wraps the provided Stripe client.
func NewStripeProcessor(api *client.API) (ProcessorClient, error) {
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &stripeProcessor{api: api}, nil
}

func (p *stripeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency.Lower()),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("buyer_id", req.BuyerID.String())

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError(err, "authorize hold")
	}
	return &Authorization{IntentRef: intent.ID, Status: string(intent.Status)}, nil
}

func (p *stripeProcessor) Capture(ctx context.Context, intentRef string) (*CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	}
	intent, err := p.api.PaymentIntents.Capture(intentRef, params)
	if err != nil {
		// A capture retry after a processor-side success comes back as an
		// unexpected-state error. Confirm against the intent itself.
		if isUnexpectedState(err) {
			current, getErr := p.api.PaymentIntents.Get(intentRef, &stripe.PaymentIntentParams{
				Params: stripe.Params{Context: ctx},
			})
			if getErr == nil && current.Status == stripe.PaymentIntentStatusSucceeded {
				return &CaptureResult{
					IntentRef:       current.ID,
					AmountCents:     current.AmountReceived,
					AlreadyCaptured: true,
				}, nil
			}
		}
		return nil, classifyStripeError(err, "capture hold")
	}
	return &CaptureResult{IntentRef: intent.ID, AmountCents: intent.AmountReceived}, nil
}

func (p *stripeProcessor) Cancel(ctx context.Context, intentRef string) error {
	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := p.api.PaymentIntents.Cancel(intentRef, params); err != nil {
		// Cancelling an already-cancelled intent is a no-op; cancelling a
		// captured one is a state conflict, not a processor rejection.
		if isUnexpectedState(err) {
			current, getErr := p.api.PaymentIntents.Get(intentRef, &stripe.PaymentIntentParams{
				Params: stripe.Params{Context: ctx},
			})
			if getErr == nil {
				switch current.Status {
				case stripe.PaymentIntentStatusCanceled:
					return nil
				case stripe.PaymentIntentStatusSucceeded:
					return pkgerrors.New(pkgerrors.CodeStateConflict, "hold was already captured").
						WithDetails(map[string]any{"intent_ref": intentRef})
				}
			}
		}
		return classifyStripeError(err, "cancel hold")
	}
	return nil
}

func (p *stripeProcessor) Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundResult, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(intentRef),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	ref, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, classifyStripeError(err, "refund capture")
	}
	return &RefundResult{RefundRef: ref.ID, AmountCents: ref.Amount}, nil
}

func isUnexpectedState(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState
}

// classifyStripeError maps processor failures onto the gateway taxonomy:
// outages, rate limits and timeouts are transient; declines and invalid
// requests are permanent.
func classifyStripeError(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, action+" timed out")
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// Transport-level failure before Stripe answered.
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, action+" failed before the processor answered")
	}

	switch {
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, action+" failed at the processor")
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, action+" was rate limited")
	case stripeErr.Type == stripe.ErrorTypeCard:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayPermanent, err, action+" was declined").
			WithDetails(map[string]string{"decline_code": string(stripeErr.DeclineCode)})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayPermanent, err, action+" was rejected by the processor")
	}
}
