package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
)

// DefaultSignatureTolerance bounds how old a signed webhook timestamp may be
// before the delivery is rejected as a possible replay.
const DefaultSignatureTolerance = 5 * time.Minute

// SignatureToleranceFromEnv reads STRIPE_WEBHOOK_TOLERANCE_SECONDS, falling
// back to DefaultSignatureTolerance when unset or not a positive integer.
func SignatureToleranceFromEnv() time.Duration {
	if v, err := strconv.Atoi(env.GetEnv("STRIPE_WEBHOOK_TOLERANCE_SECONDS", "")); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return DefaultSignatureTolerance
}

// VerifyWebhookSignature checks a Stripe-Signature header
// ("t=<unix>,v1=<hex>[,v1=<hex>...]") against the raw payload. The signed
// message is "<t>.<payload>" with HMAC-SHA256 over the shared secret.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}

	var timestamp int64
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(kv[1]))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return false
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// SignWebhookPayload produces a header the verifier accepts. Used by tests
// and the local webhook replay tool.
func SignWebhookPayload(payload []byte, webhookSecret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
