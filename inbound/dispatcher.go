package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-iap/core"
)

const (
	SurfaceApple = "apple"
	SurfacePlay  = "play"
)

// defaultMaxBodyBytes bounds accepted notification payloads. Storefront
// notifications are a few kilobytes; anything near this limit is garbage.
const defaultMaxBodyBytes int64 = 1 << 20

type IdempotencyKeyExtractor func(req core.InboundRequest) (string, error)

// Dispatcher routes storefront notifications to the handler registered for
// their surface. When a claim store is configured, each notification is
// claimed on a caller-supplied dedup key first; redelivery of an in-flight or
// completed key is acknowledged without reprocessing.
type Dispatcher struct {
	Store        core.IdempotencyClaimStore
	ExtractKey   IdempotencyKeyExtractor
	KeyTTL       time.Duration
	MaxBodyBytes int64

	mu       sync.RWMutex
	handlers map[string]core.InboundHandler
}

func NewDispatcher(store core.IdempotencyClaimStore) *Dispatcher {
	return &Dispatcher{
		Store:        store,
		ExtractKey:   DefaultIdempotencyKeyExtractor,
		KeyTTL:       10 * time.Minute,
		MaxBodyBytes: defaultMaxBodyBytes,
		handlers:     map[string]core.InboundHandler{},
	}
}

func (d *Dispatcher) Register(handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	surface := normalizeSurface(handler.Surface())
	if !isSupportedSurface(surface) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"surface": surface},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[surface]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for surface %q", surface),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.BillingErrorConflict,
			map[string]any{"surface": surface},
		)
	}
	d.handlers[surface] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.Store = normalizeSurface(req.Store)
	if req.Store == "" {
		return core.InboundResult{}, inboundBadInput("inbound: store surface is required", nil)
	}
	if !isSupportedSurface(req.Store) {
		return core.InboundResult{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", req.Store),
			map[string]any{"store": req.Store},
		)
	}
	if len(req.Body) == 0 {
		return core.InboundResult{}, inboundBadInput("inbound: notification body is required", map[string]any{
			"store": req.Store,
		})
	}
	if limit := d.maxBodyBytes(); int64(len(req.Body)) > limit {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: notification body exceeds limit of %d bytes", limit),
			goerrors.CategoryBadInput,
			http.StatusRequestEntityTooLarge,
			core.BillingErrorValidation,
			map[string]any{"store": req.Store, "body_bytes": len(req.Body), "limit_bytes": limit},
		)
	}

	handler := d.handlerFor(req.Store)
	if handler == nil {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for surface %q", req.Store),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.BillingErrorNotFound,
			map[string]any{"store": req.Store},
		)
	}

	claimID := ""
	if d.Store != nil {
		extractor := d.ExtractKey
		if extractor == nil {
			extractor = DefaultIdempotencyKeyExtractor
		}
		key, err := extractor(req)
		if err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: resolve idempotency key",
				http.StatusBadRequest,
				core.BillingErrorValidation,
				map[string]any{"store": req.Store},
			)
		}
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, req.Store+":"+key, d.keyTTL())
		if err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.BillingErrorDispatchFailed,
				map[string]any{"store": req.Store, "idempotency_key": key},
			)
		}
		if !accepted {
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata: map[string]any{
					"store":   req.Store,
					"deduped": true,
				},
			}, nil
		}
	}

	result, err := handler.Handle(ctx, req)
	if err != nil {
		d.failClaim(claimID, err)
		return core.InboundResult{}, d.ensureEnvelope(err, req.Store)
	}
	if !result.Accepted || result.StatusCode >= http.StatusInternalServerError {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusBadGateway,
			core.BillingErrorDispatchFailed,
			map[string]any{"store": req.Store, "status_code": result.StatusCode},
		)
		d.failClaim(claimID, retryErr)
		return result, retryErr
	}

	if d.Store != nil && claimID != "" {
		d.Store.Complete(claimID)
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["store"] = req.Store
	return result, nil
}

// ensureEnvelope keeps reconciler envelopes intact: an error that already
// carries its billing text code passes through, everything else gets the
// generic processing envelope.
func (d *Dispatcher) ensureEnvelope(err error, store string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return inboundWrapError(
		err,
		goerrors.CategoryOperation,
		"inbound: notification processing failed",
		http.StatusBadGateway,
		core.BillingErrorDispatchFailed,
		map[string]any{"store": store},
	)
}

func (d *Dispatcher) failClaim(claimID string, cause error) {
	if d == nil || d.Store == nil || claimID == "" {
		return
	}
	d.Store.Fail(claimID, cause, time.Time{})
}

func DefaultIdempotencyKeyExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["idempotency_key"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["notification_id"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["message_id"]); value != "" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-message-id"); value != "" {
			return value, nil
		}
	}
	return "", inboundBadInput("inbound: idempotency key is required", map[string]any{
		"store": req.Store,
	})
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	Key            string
	Status         claimStatus
	ClaimID        string
	Attempts       int
	KeyTTL         time.Duration
	LeaseExpiresAt time.Time
	RetryAt        time.Time
}

// InMemoryClaimStore tracks idempotency claims for a single process.
// Completed keys are remembered for their TTL and evicted lazily on the next
// claim, so the map stays bounded by the notification rate.
type InMemoryClaimStore struct {
	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryClaimStore) Claim(
	_ context.Context,
	key string,
	ttl time.Duration,
) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: idempotency store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: idempotency key is required", nil)
	}
	now := s.now()
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)
	entry, exists := s.entries[key]
	if !exists {
		claimID := s.nextClaimID()
		s.entries[key] = claimEntry{
			Key:            key,
			Status:         claimStatusProcessing,
			ClaimID:        claimID,
			Attempts:       1,
			KeyTTL:         ttl,
			LeaseExpiresAt: now.Add(ttl),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch entry.Status {
	case claimStatusComplete:
		if !entry.LeaseExpiresAt.IsZero() && now.Before(entry.LeaseExpiresAt) {
			return "", false, nil
		}
	case claimStatusProcessing:
		if now.Before(entry.LeaseExpiresAt) {
			return "", false, nil
		}
	case claimStatusRetryReady:
		if !entry.RetryAt.IsZero() && now.Before(entry.RetryAt) {
			return "", false, nil
		}
	}

	if entry.ClaimID != "" {
		delete(s.claims, entry.ClaimID)
	}
	claimID := s.nextClaimID()
	entry.Status = claimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.KeyTTL = ttl
	entry.LeaseExpiresAt = now.Add(ttl)
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(claimID string) {
	if s == nil {
		return
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return
	}
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		delete(s.claims, claimID)
		return
	}
	ttl := entry.KeyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	now := s.now()
	entry.Status = claimStatusComplete
	entry.LeaseExpiresAt = now.Add(ttl)
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	delete(s.claims, claimID)
}

func (s *InMemoryClaimStore) Fail(claimID string, _ error, retryAt time.Time) {
	if s == nil {
		return
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return
	}
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		delete(s.claims, claimID)
		return
	}
	if retryAt.IsZero() {
		retryAt = s.now()
	}
	entry.Status = claimStatusRetryReady
	entry.RetryAt = retryAt.UTC()
	entry.LeaseExpiresAt = time.Time{}
	s.entries[key] = entry
	delete(s.claims, claimID)
}

func (s *InMemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.Status != claimStatusComplete {
			continue
		}
		if entry.LeaseExpiresAt.IsZero() || !now.Before(entry.LeaseExpiresAt) {
			if entry.ClaimID != "" {
				delete(s.claims, entry.ClaimID)
			}
			delete(s.entries, key)
		}
	}
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

func (d *Dispatcher) maxBodyBytes() int64 {
	if d != nil && d.MaxBodyBytes > 0 {
		return d.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (d *Dispatcher) handlerFor(surface string) core.InboundHandler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeSurface(surface)]
}

func normalizeSurface(surface string) string {
	return strings.TrimSpace(strings.ToLower(surface))
}

func isSupportedSurface(surface string) bool {
	switch normalizeSurface(surface) {
	case SurfaceApple, SurfacePlay:
		return true
	default:
		return false
	}
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.IdempotencyClaimStore = (*InMemoryClaimStore)(nil)
