package payment

import "testing"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"fb_abc","status":"success"}}`)
	secret := "sk_test_secret"
	sig := Sign(body, secret)

	if !VerifySignature(body, sig, secret) {
		t.Fatal("expected signature to verify")
	}
	if VerifySignature(body, sig, "other") {
		t.Fatal("expected wrong secret to fail")
	}
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-3] = 'X'
	if VerifySignature(tampered, sig, secret) {
		t.Fatal("expected tampered body to fail")
	}
	if VerifySignature(body, "", secret) {
		t.Fatal("expected empty signature to fail")
	}
	if VerifySignature(body, sig, "") {
		t.Fatal("expected empty secret to fail")
	}
	if VerifySignature(body, sig[:len(sig)-2], secret) {
		t.Fatal("expected truncated signature to fail")
	}
}
