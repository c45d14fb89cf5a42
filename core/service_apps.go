package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const redactedCredentialValue = "***configured***"

func (s *Service) RegisterApp(ctx context.Context, in RegisterAppInput) (app App, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform":  string(in.Platform),
		"bundle_id": in.BundleID,
	}
	defer func() {
		if app.ID != "" {
			fields["app_id"] = app.ID
		}
		s.observeOperation(ctx, startedAt, "register_app", err, fields)
	}()

	if s.appStore == nil {
		err = s.mapError(fmt.Errorf("core: app store is not configured"))
		return App{}, err
	}
	if in.Name, err = requireTrimmed(in.Name, "app name is required"); err != nil {
		err = s.mapError(err)
		return App{}, err
	}
	if err = in.Platform.Validate(); err != nil {
		err = s.mapError(err)
		return App{}, err
	}
	if in.BundleID, err = requireTrimmed(in.BundleID, "app bundle id is required"); err != nil {
		err = s.mapError(err)
		return App{}, err
	}

	app, err = s.appStore.Create(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return App{}, err
	}
	return app, nil
}

func (s *Service) GetApp(ctx context.Context, id string) (App, error) {
	if s.appStore == nil {
		return App{}, s.mapError(fmt.Errorf("core: app store is not configured"))
	}
	id, err := requireTrimmed(id, "app id is required")
	if err != nil {
		return App{}, s.mapError(err)
	}
	app, err := s.appStore.Get(ctx, id)
	if err != nil {
		return App{}, s.mapError(err)
	}
	return app, nil
}

func (s *Service) ListApps(ctx context.Context) ([]App, error) {
	if s.appStore == nil {
		return nil, s.mapError(fmt.Errorf("core: app store is not configured"))
	}
	apps, err := s.appStore.List(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return apps, nil
}

func (s *Service) SaveStoreCredentials(ctx context.Context, appID string, creds StoreCredentials) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": appID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "save_store_credentials", err, fields)
	}()

	if s.appStore == nil {
		err = s.mapError(fmt.Errorf("core: app store is not configured"))
		return err
	}
	if appID, err = requireTrimmed(appID, "app id is required"); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = validateStoreCredentials(creds); err != nil {
		err = s.mapError(err)
		return err
	}
	if _, err = s.appStore.Get(ctx, appID); err != nil {
		err = s.mapError(err)
		return err
	}

	payload, marshalErr := json.Marshal(creds)
	if marshalErr != nil {
		err = s.mapError(fmt.Errorf("core: encode store credentials: %w", marshalErr))
		return err
	}
	if s.secretProvider != nil {
		sealed, sealErr := s.secretProvider.Encrypt(ctx, payload)
		if sealErr != nil {
			err = s.mapError(sealErr)
			return err
		}
		payload = sealed
	}
	if err = s.appStore.SaveCredentials(ctx, appID, payload); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// DescribeStoreCredentials reports which stores have key material configured.
// Private keys never leave the service; they are replaced with a fixed marker.
func (s *Service) DescribeStoreCredentials(ctx context.Context, appID string) (map[string]any, error) {
	appID, err := requireTrimmed(appID, "app id is required")
	if err != nil {
		return nil, s.mapError(err)
	}
	creds, err := s.loadStoreCredentials(ctx, appID)
	if err != nil {
		return nil, s.mapError(err)
	}

	out := map[string]any{}
	if creds.Apple != nil {
		out["apple"] = map[string]any{
			"issuer_id":   creds.Apple.IssuerID,
			"key_id":      creds.Apple.KeyID,
			"private_key": redactedCredentialValue,
			"sandbox":     creds.Apple.Sandbox,
		}
	}
	if creds.Play != nil {
		out["play"] = map[string]any{
			"client_email": creds.Play.ClientEmail,
			"private_key":  redactedCredentialValue,
			"token_uri":    creds.Play.TokenURI,
		}
	}
	return out, nil
}

func (s *Service) CreateAPIKey(ctx context.Context, appID string) (created CreatedAPIKey, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": appID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_api_key", err, fields)
	}()

	if s.apiKeyStore == nil {
		err = s.mapError(fmt.Errorf("core: api key store is not configured"))
		return CreatedAPIKey{}, err
	}
	if appID, err = requireTrimmed(appID, "app id is required"); err != nil {
		err = s.mapError(err)
		return CreatedAPIKey{}, err
	}
	if _, err = s.GetApp(ctx, appID); err != nil {
		return CreatedAPIKey{}, err
	}

	token, tokenErr := generateAPIToken()
	if tokenErr != nil {
		err = s.mapError(tokenErr)
		return CreatedAPIKey{}, err
	}
	key, storeErr := s.apiKeyStore.Create(ctx, APIKey{
		AppID:     appID,
		KeyHash:   hashAPIToken(token),
		CreatedAt: s.clock(),
	})
	if storeErr != nil {
		err = s.mapError(storeErr)
		return CreatedAPIKey{}, err
	}
	created = CreatedAPIKey{APIKey: key, Token: token}
	return created, nil
}

func (s *Service) AuthenticateAPIKey(ctx context.Context, token string) (app App, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if app.ID != "" {
			fields["app_id"] = app.ID
		}
		s.observeOperation(ctx, startedAt, "authenticate_api_key", err, fields)
	}()

	if s.apiKeyStore == nil {
		err = s.mapError(fmt.Errorf("core: api key store is not configured"))
		return App{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		err = s.unauthorizedError("api key is required")
		return App{}, err
	}

	key, lookupErr := s.apiKeyStore.GetByHash(ctx, hashAPIToken(token))
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return App{}, err
	}
	if key.Revoked() {
		err = s.unauthorizedError("api key is revoked")
		return App{}, err
	}
	app, err = s.GetApp(ctx, key.AppID)
	if err != nil {
		return App{}, err
	}
	return app, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, keyID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"api_key_id": keyID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke_api_key", err, fields)
	}()

	if s.apiKeyStore == nil {
		err = s.mapError(fmt.Errorf("core: api key store is not configured"))
		return err
	}
	if keyID, err = requireTrimmed(keyID, "api key id is required"); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.apiKeyStore.Revoke(ctx, keyID, s.clock()); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) unauthorizedError(message string) error {
	return s.errorFactory(message, goerrors.CategoryAuth).
		WithTextCode(BillingErrorUnauthorized)
}

func validateStoreCredentials(creds StoreCredentials) error {
	if creds.Apple == nil && creds.Play == nil {
		return fmt.Errorf("core: store credentials are required")
	}
	if apple := creds.Apple; apple != nil {
		if strings.TrimSpace(apple.IssuerID) == "" ||
			strings.TrimSpace(apple.KeyID) == "" ||
			strings.TrimSpace(apple.PrivateKey) == "" {
			return fmt.Errorf("core: apple credentials require issuer_id, key_id, and private_key")
		}
	}
	if play := creds.Play; play != nil {
		if strings.TrimSpace(play.ClientEmail) == "" ||
			strings.TrimSpace(play.PrivateKey) == "" {
			return fmt.Errorf("core: play credentials require client_email and private_key")
		}
	}
	return nil
}

func generateAPIToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate api token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
