package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// VerifySignature reports whether signature is the lowercase hex HMAC-SHA512
// of rawBody under secret. Empty inputs never verify.
func VerifySignature(rawBody []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(rawBody, secret)), []byte(signature))
}

// Sign computes the signature VerifySignature expects.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
