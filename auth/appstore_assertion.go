package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-iap/core"
)

const (
	// AppStoreAPITokenTTL bounds assertions presented to the App Store
	// Server API.
	AppStoreAPITokenTTL = 60 * time.Minute
	// AppStoreConnectTokenTTL bounds assertions presented to the App Store
	// Connect API.
	AppStoreConnectTokenTTL = 20 * time.Minute

	appStoreAudience = "appstoreconnect-v1"
)

type AppStoreAssertionConfig struct {
	IssuerID   string
	KeyID      string
	PrivateKey string
	BundleID   string
	Now        func() time.Time
}

// AppStoreAssertion mints the short-lived ES256 bearer tokens Apple expects
// on Server API and Connect API calls. Every call signs a fresh token;
// assertions are never cached.
type AppStoreAssertion struct {
	config AppStoreAssertionConfig
}

func NewAppStoreAssertion(cfg AppStoreAssertionConfig) *AppStoreAssertion {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AppStoreAssertion{
		config: AppStoreAssertionConfig{
			IssuerID:   strings.TrimSpace(cfg.IssuerID),
			KeyID:      strings.TrimSpace(cfg.KeyID),
			PrivateKey: strings.TrimSpace(cfg.PrivateKey),
			BundleID:   strings.TrimSpace(cfg.BundleID),
			Now:        now,
		},
	}
}

// SignAPIToken mints a Server API assertion scoped to the configured bundle
// id via the bid claim.
func (a *AppStoreAssertion) SignAPIToken() (string, error) {
	return a.sign(AppStoreAPITokenTTL, true)
}

// SignConnectToken mints a Connect API assertion. Connect rejects the bid
// claim, so it is omitted.
func (a *AppStoreAssertion) SignConnectToken() (string, error) {
	return a.sign(AppStoreConnectTokenTTL, false)
}

func (a *AppStoreAssertion) sign(ttl time.Duration, includeBundleID bool) (string, error) {
	if a.config.IssuerID == "" {
		return "", fmt.Errorf("%w: issuer id is required", core.ErrSigningFailed)
	}
	if a.config.KeyID == "" {
		return "", fmt.Errorf("%w: key id is required", core.ErrSigningFailed)
	}
	if a.config.PrivateKey == "" {
		return "", fmt.Errorf("%w: private key is required", core.ErrSigningFailed)
	}
	if includeBundleID && a.config.BundleID == "" {
		return "", fmt.Errorf("%w: bundle id is required for server api tokens", core.ErrSigningFailed)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(a.config.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("%w: parse ec private key: %v", core.ErrSigningFailed, err)
	}

	now := a.config.Now().UTC()
	claims := jwt.MapClaims{
		"iss": a.config.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"aud": appStoreAudience,
	}
	if includeBundleID {
		claims["bid"] = a.config.BundleID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.config.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: sign es256 assertion: %v", core.ErrSigningFailed, err)
	}
	return signed, nil
}
