package inbound

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-iap/core"
)

func TestDefaultIdempotencyKeyExtractor_MissingKeyReturnsRichError(t *testing.T) {
	_, err := DefaultIdempotencyKeyExtractor(core.InboundRequest{Store: SurfaceApple})
	if err == nil {
		t.Fatalf("expected idempotency key error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad_input category, got %q", rich.Category)
	}
	if rich.TextCode != core.BillingErrorValidation {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorValidation, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
}

func TestDispatch_ReconcilerEnvelopePassesThrough(t *testing.T) {
	reconciler := &stubReconciler{
		err: goerrors.New("reconcile notification: decode signed payload", goerrors.CategoryBadInput).
			WithTextCode(core.BillingErrorMalformedToken).
			WithCode(http.StatusBadRequest),
	}
	dispatcher := NewStoreDispatcher(reconciler)

	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		Store: SurfaceApple,
		Body:  []byte(`{"signedPayload":"garbage"}`),
		Metadata: map[string]any{
			"idempotency_key": "note-bad",
		},
	})
	if err == nil {
		t.Fatalf("expected reconciler failure to bubble")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.BillingErrorMalformedToken {
		t.Fatalf("expected reconciler text code preserved, got %q", rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
}

func TestDispatch_PlainHandlerErrorGetsDispatchEnvelope(t *testing.T) {
	reconciler := &stubReconciler{err: errors.New("subscriber store offline")}
	dispatcher := NewStoreDispatcher(reconciler)

	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		Store: SurfacePlay,
		Body:  []byte(`{"message":{"data":"e30="}}`),
		Metadata: map[string]any{
			"idempotency_key": "note-down",
		},
	})
	if err == nil {
		t.Fatalf("expected handler failure to bubble")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryOperation {
		t.Fatalf("expected operation category, got %q", rich.Category)
	}
	if rich.TextCode != core.BillingErrorDispatchFailed {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorDispatchFailed, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestDispatch_OversizeBodyReturnsRichError(t *testing.T) {
	dispatcher := NewStoreDispatcher(&stubReconciler{})
	dispatcher.MaxBodyBytes = 16

	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		Store: SurfaceApple,
		Body:  []byte(`{"signedPayload":"far too large for the configured limit"}`),
		Metadata: map[string]any{
			"idempotency_key": "note-big",
		},
	})
	if err == nil {
		t.Fatalf("expected oversize body to be rejected")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected %d code, got %d", http.StatusRequestEntityTooLarge, rich.Code)
	}
	if rich.TextCode != core.BillingErrorValidation {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorValidation, rich.TextCode)
	}
}
