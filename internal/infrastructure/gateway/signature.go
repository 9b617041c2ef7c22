package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	HeaderSignature = "x-signature"
	HeaderRequestID = "x-request-id"
)

// SignatureVerifier checks the x-signature header of gateway notifications.
// The signed manifest is "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type SignatureVerifier struct {
	secret string
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: strings.TrimSpace(secret)}
}

// Enabled reports whether a secret is configured
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify reports whether headers carry a valid signature for dataID.
// Without a secret every notification is accepted.
func (v *SignatureVerifier) Verify(headers http.Header, dataID string) bool {
	if !v.Enabled() {
		return true
	}
	ts, sig := parseSignatureHeader(headers.Get(HeaderSignature))
	if ts == "" || sig == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(Manifest(dataID, headers.Get(HeaderRequestID), ts)))
	return hmac.Equal(mac.Sum(nil), expected)
}

// Manifest builds the string the gateway signs
func Manifest(dataID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
}

// Sign produces an x-signature header value; used by tests and local tooling
func Sign(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Manifest(dataID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}
