package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-iap/core"
)

const (
	// PlayPublisherScope grants access to the Android Publisher API.
	PlayPublisherScope = "https://www.googleapis.com/auth/androidpublisher"
	// PlayAssertionTTL bounds the self-signed jwt-bearer assertion.
	PlayAssertionTTL = 60 * time.Minute

	playJWTBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

type PlayTokenSourceConfig struct {
	ClientEmail  string
	PrivateKey   string
	TokenURI     string
	Scope        string
	AssertionTTL time.Duration
	Transport    core.TransportAdapter
	Now          func() time.Time
}

// PlayTokenSource exchanges a fresh RS256 service-account assertion for a
// bearer access token on every call. Nothing is cached; expiry handling is
// left to the vendor endpoint.
type PlayTokenSource struct {
	config PlayTokenSourceConfig
}

func NewPlayTokenSource(cfg PlayTokenSourceConfig) *PlayTokenSource {
	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		scope = PlayPublisherScope
	}
	assertionTTL := cfg.AssertionTTL
	if assertionTTL <= 0 {
		assertionTTL = PlayAssertionTTL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PlayTokenSource{
		config: PlayTokenSourceConfig{
			ClientEmail:  strings.TrimSpace(cfg.ClientEmail),
			PrivateKey:   strings.TrimSpace(cfg.PrivateKey),
			TokenURI:     strings.TrimSpace(cfg.TokenURI),
			Scope:        scope,
			AssertionTTL: assertionTTL,
			Transport:    cfg.Transport,
			Now:          now,
		},
	}
}

func (s *PlayTokenSource) Token(ctx context.Context) (string, error) {
	if s.config.Transport == nil {
		return "", fmt.Errorf("auth: play token source requires a transport adapter")
	}

	assertion, err := s.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", playJWTBearerGrant)
	form.Set("assertion", assertion)

	resp, err := s.config.Transport.Do(ctx, core.TransportRequest{
		Method: http.MethodPost,
		URL:    s.config.TokenURI,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", core.ErrStoreUnavailable, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: token endpoint returned %d", core.ErrStoreUnavailable, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("%w: token endpoint body: %v", core.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access_token", core.ErrMalformedResponse)
	}
	return payload.AccessToken, nil
}

func (s *PlayTokenSource) signAssertion() (string, error) {
	if s.config.ClientEmail == "" {
		return "", fmt.Errorf("%w: client email is required", core.ErrSigningFailed)
	}
	if s.config.PrivateKey == "" {
		return "", fmt.Errorf("%w: private key is required", core.ErrSigningFailed)
	}
	if s.config.TokenURI == "" {
		return "", fmt.Errorf("%w: token uri is required", core.ErrSigningFailed)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.config.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("%w: parse rsa private key: %v", core.ErrSigningFailed, err)
	}

	now := s.config.Now().UTC()
	claims := jwt.MapClaims{
		"iss":   s.config.ClientEmail,
		"scope": s.config.Scope,
		"aud":   s.config.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(s.config.AssertionTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: sign rs256 assertion: %v", core.ErrSigningFailed, err)
	}
	return signed, nil
}
