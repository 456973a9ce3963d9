package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wardrobe/internal/types"
)

// DefaultWebhookTolerance bounds how far a signed webhook timestamp may
// drift from the verifier's clock before the event is rejected as a
// possible replay.
const DefaultWebhookTolerance = 5 * time.Minute

// WebhookVerifier checks inbound webhook signatures. Implemented by
// StripeSignatureVerifier; handlers depend on the interface so tests can
// substitute a fixed-clock verifier.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeSignatureVerifier verifies Stripe-Signature headers of the form
// "t=<epoch>,v1=<hex>". The signed content is "{timestamp}.{payload}" under
// HMAC-SHA256 with the endpoint signing secret.
type StripeSignatureVerifier struct {
	// Tolerance is the maximum allowed clock skew. Zero means
	// DefaultWebhookTolerance.
	Tolerance time.Duration

	clock types.Clock
}

// NewStripeSignatureVerifier creates a verifier with the given tolerance.
func NewStripeSignatureVerifier(tolerance time.Duration, clock types.Clock) *StripeSignatureVerifier {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &StripeSignatureVerifier{
		Tolerance: tolerance,
		clock:     clock,
	}
}

// Verify checks the payload against the signature header. It returns a
// webhook_signature_invalid AppError on a malformed header, a timestamp
// outside the tolerance window, or a signature mismatch. All candidate v1
// signatures in the header are checked, so endpoint secret rotation (two
// simultaneous v1 entries) verifies cleanly.
func (v *StripeSignatureVerifier) Verify(payload []byte, header string, secret string) error {
	parts := parseSignatureHeader(header)
	if parts.timestamp == "" || len(parts.v1) == 0 {
		return types.NewAppError(
			types.ErrCodeWebhookSignature,
			"signature header is missing t= or v1= components",
			nil,
		)
	}

	epoch, err := strconv.ParseInt(parts.timestamp, 10, 64)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeWebhookSignature,
			"signature timestamp is not an integer",
			err,
		)
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}
	now := v.clock.Now()
	skew := now.Sub(time.Unix(epoch, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return types.NewAppError(
			types.ErrCodeWebhookSignature,
			"signature timestamp is outside the tolerance window",
			nil,
		)
	}

	signedContent := fmt.Sprintf("%s.%s", parts.timestamp, string(payload))
	expected := computeHMAC(signedContent, secret)
	for _, candidate := range parts.v1 {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}

	return types.NewAppError(
		types.ErrCodeWebhookSignature,
		"signature does not match payload",
		nil,
	)
}

// signatureParts holds the parsed components of a signature header.
type signatureParts struct {
	timestamp string
	v1        []string
}

// parseSignatureHeader breaks a signature header into its component parts.
// Expected format: "t=<epoch>,v1=<hex>[,v1=<hex>]". Unknown keys are ignored.
func parseSignatureHeader(header string) signatureParts {
	var parts signatureParts
	for _, segment := range strings.Split(header, ",") {
		kv := strings.SplitN(segment, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parts.timestamp = value
		case "v1":
			parts.v1 = append(parts.v1, value)
		}
	}
	return parts
}

// computeHMAC computes the HMAC-SHA256 of content using the given key and
// returns it as a lowercase hex string.
func computeHMAC(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
