package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func encodeTestToken(t *testing.T, header, claims any) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return strings.Join([]string{
		base64.RawURLEncoding.EncodeToString(headerJSON),
		base64.RawURLEncoding.EncodeToString(claimsJSON),
		base64.RawURLEncoding.EncodeToString([]byte("sig-bytes")),
	}, ".")
}

func TestDecodeSignedPayload_RoundTrip(t *testing.T) {
	token := encodeTestToken(t,
		map[string]any{"alg": "ES256", "x5c": []string{"cert"}},
		map[string]any{"notificationType": "DID_RENEW", "bundleId": "com.example.starfall"},
	)

	payload, err := DecodeSignedPayload(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Header["alg"] != "ES256" {
		t.Fatalf("unexpected header: %+v", payload.Header)
	}
	var claims struct {
		NotificationType string `json:"notificationType"`
		BundleID         string `json:"bundleId"`
	}
	if err := json.Unmarshal(payload.Claims, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if claims.NotificationType != "DID_RENEW" || claims.BundleID != "com.example.starfall" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if string(payload.Signature) != "sig-bytes" {
		t.Fatalf("unexpected signature: %q", payload.Signature)
	}
}

func TestDecodeSignedPayload_SegmentCount(t *testing.T) {
	cases := []string{
		"",
		"only-one",
		"two.segments",
		"a.b.c.d",
	}
	for _, token := range cases {
		_, err := DecodeSignedPayload(token)
		if !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("token %q: expected ErrMalformedToken, got %v", token, err)
		}
	}
}

func TestDecodeSignedPayload_RejectsBadSegments(t *testing.T) {
	good := encodeTestToken(t, map[string]any{"alg": "ES256"}, map[string]any{"ok": true})
	segments := strings.Split(good, ".")

	badHeader := strings.Join([]string{"!!!", segments[1], segments[2]}, ".")
	if _, err := DecodeSignedPayload(badHeader); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("bad header segment: expected ErrMalformedToken, got %v", err)
	}

	badClaims := strings.Join([]string{segments[0], "!!!", segments[2]}, ".")
	if _, err := DecodeSignedPayload(badClaims); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("bad claims segment: expected ErrMalformedToken, got %v", err)
	}

	badSignature := strings.Join([]string{segments[0], segments[1], "!!!"}, ".")
	if _, err := DecodeSignedPayload(badSignature); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("bad signature segment: expected ErrMalformedToken, got %v", err)
	}

	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	invalidClaims := strings.Join([]string{segments[0], notJSON, segments[2]}, ".")
	if _, err := DecodeSignedPayload(invalidClaims); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("invalid claims json: expected ErrMalformedToken, got %v", err)
	}
}

func TestDecodeSignedPayload_TrimsWhitespace(t *testing.T) {
	token := encodeTestToken(t, map[string]any{"alg": "ES256"}, map[string]any{"ok": true})
	if _, err := DecodeSignedPayload("  " + token + "\n"); err != nil {
		t.Fatalf("decode with surrounding whitespace: %v", err)
	}
}

func TestDecodeClaims_Typed(t *testing.T) {
	token := encodeTestToken(t,
		map[string]any{"alg": "ES256"},
		map[string]any{"transactionId": "1000000123", "productId": "premium_monthly"},
	)

	var claims struct {
		TransactionID string `json:"transactionId"`
		ProductID     string `json:"productId"`
	}
	if err := DecodeClaims(token, &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims.TransactionID != "1000000123" || claims.ProductID != "premium_monthly" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	var wrongShape struct {
		TransactionID int `json:"transactionId"`
	}
	if err := DecodeClaims(token, &wrongShape); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("shape mismatch: expected ErrMalformedToken, got %v", err)
	}
}
