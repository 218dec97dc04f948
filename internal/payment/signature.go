package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Sign computes the hex HMAC-SHA256 of body with the shared gateway secret.
// The gateway sends this value in X-Gateway-Signature.
func Sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks sigHex against the body HMAC in constant time.
func VerifySignature(secret, body []byte, sigHex string) bool {
	want, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hmac.Equal(h.Sum(nil), want)
}

// VerifyTimestamp checks that the unix-seconds X-Gateway-Timestamp header is
// within skew of now. Replayed deliveries fail here even with a valid
// signature.
func VerifyTimestamp(header string, now time.Time, skew time.Duration) bool {
	ts, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return false
	}
	diff := now.Sub(time.Unix(ts, 0))
	if diff < 0 {
		diff = -diff
	}
	return diff <= skew
}
