package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// SignedPayload is a structurally decoded JWS compact serialization. The
// signature segment is carried but not verified: payloads are accepted on the
// strength of the transport they arrived over, and the x5c chain is ignored.
type SignedPayload struct {
	Header    map[string]any
	Claims    json.RawMessage
	Signature []byte
}

// DecodeSignedPayload splits token on "." and decodes the three segments.
// Any structural defect (segment count, base64, JSON) reports
// ErrMalformedToken; arbitrary input never panics.
func DecodeSignedPayload(token string) (SignedPayload, error) {
	segments := strings.Split(strings.TrimSpace(token), ".")
	if len(segments) != 3 {
		return SignedPayload{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(segments))
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: header segment: %v", ErrMalformedToken, err)
	}
	header := map[string]any{}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return SignedPayload{}, fmt.Errorf("%w: header json: %v", ErrMalformedToken, err)
	}

	claimsRaw, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: claims segment: %v", ErrMalformedToken, err)
	}
	if !json.Valid(claimsRaw) {
		return SignedPayload{}, fmt.Errorf("%w: claims json", ErrMalformedToken)
	}

	signature, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: signature segment: %v", ErrMalformedToken, err)
	}

	return SignedPayload{
		Header:    header,
		Claims:    json.RawMessage(claimsRaw),
		Signature: signature,
	}, nil
}

// DecodeClaims decodes token and unmarshals the claims segment into out.
func DecodeClaims(token string, out any) error {
	payload, err := DecodeSignedPayload(token)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Claims, out); err != nil {
		return fmt.Errorf("%w: claims shape: %v", ErrMalformedToken, err)
	}
	return nil
}
