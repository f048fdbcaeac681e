package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// ---------------------------------------------------------------------------
// Stripe Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature validation, which checks both the HMAC-SHA256 signature and the
// timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the Stripe-Signature
// header and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}

// ---------------------------------------------------------------------------
// Paddle Webhook Verification (HMAC-SHA256)
// ---------------------------------------------------------------------------

// paddleTimestampTolerance bounds how old a signed Paddle webhook may be
// before it is rejected as a possible replay.
const paddleTimestampTolerance = 5 * time.Minute

// PaddleVerifier implements WebhookVerifier for Paddle's Paddle-Signature
// scheme: the header carries `ts=<unix>;h1=<hex>` where h1 is
// HMAC-SHA256(secret, "<ts>:<raw body>").
type PaddleVerifier struct {
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// Verify validates a Paddle webhook payload against the Paddle-Signature
// header and the shared webhook secret.
func (v *PaddleVerifier) Verify(payload []byte, header string, secret string) error {
	if secret == "" {
		return errors.New("webhook secret is empty")
	}

	ts, sig, err := parsePaddleSignature(header)
	if err != nil {
		return err
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp in signature header: %w", err)
	}
	age := now().Sub(time.Unix(tsInt, 0))
	if age > paddleTimestampTolerance || age < -paddleTimestampTolerance {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// parsePaddleSignature extracts the ts and h1 components from a
// Paddle-Signature header value.
func parsePaddleSignature(header string) (ts string, sig string, err error) {
	if header == "" {
		return "", "", errors.New("signature header is empty")
	}

	for _, part := range strings.Split(header, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			sig = value
		}
	}

	if ts == "" || sig == "" {
		return "", "", errors.New("signature header missing ts or h1 component")
	}
	return ts, sig, nil
}

var (
	_ WebhookVerifier = (*StripeVerifier)(nil)
	_ WebhookVerifier = (*PaddleVerifier)(nil)
)
