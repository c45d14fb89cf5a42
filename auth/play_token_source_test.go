package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-iap/core"
)

type stubTransport struct {
	requests []core.TransportRequest
	respond  func(core.TransportRequest) (core.TransportResponse, error)
}

func (s *stubTransport) Kind() string { return "stub" }

func (s *stubTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	s.requests = append(s.requests, req)
	if s.respond == nil {
		return core.TransportResponse{StatusCode: http.StatusOK}, nil
	}
	return s.respond(req)
}

func newTestPlayTokenSource(t *testing.T, transport *stubTransport, now func() time.Time) *PlayTokenSource {
	t.Helper()

	return NewPlayTokenSource(PlayTokenSourceConfig{
		ClientEmail: "svc@starfall.iam.gserviceaccount.com",
		PrivateKey:  generateTestRSAPrivateKeyPEM(t),
		TokenURI:    "https://oauth2.googleapis.com/token",
		Transport:   transport,
		Now:         now,
	})
}

func TestPlayTokenSource_ExchangesAssertionForBearer(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	transport := &stubTransport{
		respond: func(core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{
				StatusCode: http.StatusOK,
				Body:       []byte(`{"access_token":"ya29.play-token","token_type":"Bearer","expires_in":3600}`),
			}, nil
		},
	}
	source := newTestPlayTokenSource(t, transport, func() time.Time { return now })

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "ya29.play-token" {
		t.Fatalf("unexpected access token %q", token)
	}

	if len(transport.requests) != 1 {
		t.Fatalf("expected 1 exchange request, got %d", len(transport.requests))
	}
	req := transport.requests[0]
	if req.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	if req.URL != "https://oauth2.googleapis.com/token" {
		t.Fatalf("unexpected token uri %q", req.URL)
	}
	if req.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", req.Headers["Content-Type"])
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("parse form body: %v", err)
	}
	if form.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		t.Fatalf("unexpected grant type %q", form.Get("grant_type"))
	}

	assertion := form.Get("assertion")
	payload, err := core.DecodeSignedPayload(assertion)
	if err != nil {
		t.Fatalf("decode assertion: %v", err)
	}
	if payload.Header["alg"] != "RS256" {
		t.Fatalf("expected RS256 assertion, got %v", payload.Header["alg"])
	}

	var claims struct {
		Issuer   string `json:"iss"`
		Scope    string `json:"scope"`
		Audience string `json:"aud"`
		IssuedAt int64  `json:"iat"`
		Expiry   int64  `json:"exp"`
	}
	if err := core.DecodeClaims(assertion, &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims.Issuer != "svc@starfall.iam.gserviceaccount.com" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Scope != PlayPublisherScope {
		t.Fatalf("expected default publisher scope, got %q", claims.Scope)
	}
	if claims.Audience != "https://oauth2.googleapis.com/token" {
		t.Fatalf("unexpected audience %q", claims.Audience)
	}
	if claims.IssuedAt != now.Unix() {
		t.Fatalf("expected iat %d, got %d", now.Unix(), claims.IssuedAt)
	}
	if claims.Expiry-claims.IssuedAt != int64(PlayAssertionTTL/time.Second) {
		t.Fatalf("expected %s assertion ttl, got %ds", PlayAssertionTTL, claims.Expiry-claims.IssuedAt)
	}
}

func TestPlayTokenSource_SignsFreshAssertionPerCall(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	transport := &stubTransport{
		respond: func(core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{
				StatusCode: http.StatusOK,
				Body:       []byte(`{"access_token":"ya29.play-token"}`),
			}, nil
		},
	}
	source := newTestPlayTokenSource(t, transport, func() time.Time { return now })

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("second token: %v", err)
	}

	if len(transport.requests) != 2 {
		t.Fatalf("expected an exchange per call, got %d", len(transport.requests))
	}
	firstForm, _ := url.ParseQuery(string(transport.requests[0].Body))
	secondForm, _ := url.ParseQuery(string(transport.requests[1].Body))
	if firstForm.Get("assertion") == secondForm.Get("assertion") {
		t.Fatalf("expected a fresh assertion per exchange")
	}
}

func TestPlayTokenSource_EndpointUnavailable(t *testing.T) {
	transport := &stubTransport{
		respond: func(core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{StatusCode: http.StatusServiceUnavailable, Body: []byte("upstream")}, nil
		},
	}
	source := newTestPlayTokenSource(t, transport, nil)

	if _, err := source.Token(context.Background()); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable for 503, got %v", err)
	}

	transport.respond = func(core.TransportRequest) (core.TransportResponse, error) {
		return core.TransportResponse{}, fmt.Errorf("connection reset")
	}
	if _, err := source.Token(context.Background()); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable for transport error, got %v", err)
	}
}

func TestPlayTokenSource_MalformedTokenResponse(t *testing.T) {
	transport := &stubTransport{
		respond: func(core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte("not-json")}, nil
		},
	}
	source := newTestPlayTokenSource(t, transport, nil)

	if _, err := source.Token(context.Background()); !errors.Is(err, core.ErrMalformedResponse) {
		t.Fatalf("expected malformed response for bad json, got %v", err)
	}

	transport.respond = func(core.TransportRequest) (core.TransportResponse, error) {
		return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"token_type":"Bearer"}`)}, nil
	}
	if _, err := source.Token(context.Background()); !errors.Is(err, core.ErrMalformedResponse) {
		t.Fatalf("expected malformed response for missing access_token, got %v", err)
	}
}

func TestPlayTokenSource_BadKeyMaterialNeverHitsTransport(t *testing.T) {
	transport := &stubTransport{}
	source := NewPlayTokenSource(PlayTokenSourceConfig{
		ClientEmail: "svc@starfall.iam.gserviceaccount.com",
		PrivateKey:  "garbage",
		TokenURI:    "https://oauth2.googleapis.com/token",
		Transport:   transport,
	})

	if _, err := source.Token(context.Background()); !errors.Is(err, core.ErrSigningFailed) {
		t.Fatalf("expected signing failure, got %v", err)
	}
	if len(transport.requests) != 0 {
		t.Fatalf("expected no exchange for unusable key material")
	}
}

func TestPlayTokenSource_RequiresTransport(t *testing.T) {
	source := NewPlayTokenSource(PlayTokenSourceConfig{
		ClientEmail: "svc@starfall.iam.gserviceaccount.com",
		PrivateKey:  generateTestRSAPrivateKeyPEM(t),
		TokenURI:    "https://oauth2.googleapis.com/token",
	})
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatalf("expected transport requirement error")
	}
}

func generateTestRSAPrivateKeyPEM(t *testing.T) string {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	encoded := x509.MarshalPKCS1PrivateKey(privateKey)
	pemBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: encoded,
	})
	if len(pemBlock) == 0 {
		t.Fatalf("encode rsa key to pem")
	}
	return string(pemBlock)
}
