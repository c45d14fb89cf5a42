package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-iap/core"
)

func TestAppStoreAssertion_SignAPIToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assertion := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: generateTestECPrivateKeyPEM(t),
		BundleID:   "com.example.starfall",
		Now:        func() time.Time { return now },
	})

	token, err := assertion.SignAPIToken()
	if err != nil {
		t.Fatalf("sign api token: %v", err)
	}

	payload, err := core.DecodeSignedPayload(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if payload.Header["alg"] != "ES256" {
		t.Fatalf("expected ES256 header, got %v", payload.Header["alg"])
	}
	if payload.Header["kid"] != "key-1" {
		t.Fatalf("expected kid header, got %v", payload.Header["kid"])
	}
	if len(payload.Signature) == 0 {
		t.Fatalf("expected signature bytes")
	}

	var claims struct {
		Issuer   string `json:"iss"`
		Audience string `json:"aud"`
		BundleID string `json:"bid"`
		IssuedAt int64  `json:"iat"`
		Expiry   int64  `json:"exp"`
	}
	if err := core.DecodeClaims(token, &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims.Issuer != "issuer-1" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Audience != "appstoreconnect-v1" {
		t.Fatalf("unexpected audience %q", claims.Audience)
	}
	if claims.BundleID != "com.example.starfall" {
		t.Fatalf("unexpected bundle id %q", claims.BundleID)
	}
	if claims.IssuedAt != now.Unix() {
		t.Fatalf("expected iat %d, got %d", now.Unix(), claims.IssuedAt)
	}
	if claims.Expiry != now.Add(AppStoreAPITokenTTL).Unix() {
		t.Fatalf("expected exp %d, got %d", now.Add(AppStoreAPITokenTTL).Unix(), claims.Expiry)
	}
}

func TestAppStoreAssertion_ConnectTokenOmitsBundleID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assertion := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: generateTestECPrivateKeyPEM(t),
		BundleID:   "com.example.starfall",
		Now:        func() time.Time { return now },
	})

	token, err := assertion.SignConnectToken()
	if err != nil {
		t.Fatalf("sign connect token: %v", err)
	}

	payload, err := core.DecodeSignedPayload(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload.Claims, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if _, ok := claims["bid"]; ok {
		t.Fatalf("expected connect token without bid claim")
	}
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	if time.Duration(exp-iat)*time.Second != AppStoreConnectTokenTTL {
		t.Fatalf("expected %s ttl, got %vs", AppStoreConnectTokenTTL, exp-iat)
	}
}

func TestAppStoreAssertion_SignsFreshTokenPerCall(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assertion := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: generateTestECPrivateKeyPEM(t),
		BundleID:   "com.example.starfall",
		Now:        func() time.Time { return now },
	})

	first, err := assertion.SignAPIToken()
	if err != nil {
		t.Fatalf("sign first token: %v", err)
	}
	now = now.Add(10 * time.Minute)
	second, err := assertion.SignAPIToken()
	if err != nil {
		t.Fatalf("sign second token: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh assertion per call")
	}

	var claims struct {
		IssuedAt int64 `json:"iat"`
	}
	if err := core.DecodeClaims(second, &claims); err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	if claims.IssuedAt != now.Unix() {
		t.Fatalf("expected second token issued at the advanced clock")
	}
}

func TestAppStoreAssertion_RejectsBadKeyMaterial(t *testing.T) {
	assertion := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: "not-a-pem-block",
		BundleID:   "com.example.starfall",
	})
	if _, err := assertion.SignAPIToken(); !errors.Is(err, core.ErrSigningFailed) {
		t.Fatalf("expected signing failure, got %v", err)
	}

	rsaKeyed := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: generateTestRSAPrivateKeyPEM(t),
		BundleID:   "com.example.starfall",
	})
	if _, err := rsaKeyed.SignAPIToken(); !errors.Is(err, core.ErrSigningFailed) {
		t.Fatalf("expected es256 signer to reject rsa key material, got %v", err)
	}
}

func TestAppStoreAssertion_RequiresConfig(t *testing.T) {
	if _, err := NewAppStoreAssertion(AppStoreAssertionConfig{}).SignAPIToken(); !errors.Is(err, core.ErrSigningFailed) {
		t.Fatalf("expected signing failure for empty config, got %v", err)
	}

	noBundle := NewAppStoreAssertion(AppStoreAssertionConfig{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		PrivateKey: generateTestECPrivateKeyPEM(t),
	})
	if _, err := noBundle.SignAPIToken(); !errors.Is(err, core.ErrSigningFailed) {
		t.Fatalf("expected signing failure without bundle id, got %v", err)
	}
	if _, err := noBundle.SignConnectToken(); err != nil {
		t.Fatalf("connect token without bundle id: %v", err)
	}
}

func generateTestECPrivateKeyPEM(t *testing.T) string {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	encoded, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("marshal ec key: %v", err)
	}
	pemBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: encoded,
	})
	if len(pemBlock) == 0 {
		t.Fatalf("encode ec key to pem")
	}
	return string(pemBlock)
}
