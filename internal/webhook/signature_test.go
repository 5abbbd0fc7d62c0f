package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureForgejoUnprefixed(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	secret := "s3cr3t"
	sig := sign(secret, body)

	if !VerifySignature(secret, sig, body) {
		t.Fatal("expected unprefixed hex digest to verify")
	}
}

func TestVerifySignatureGitHubPrefixed(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	secret := "s3cr3t"
	sig := "sha256=" + sign(secret, body)

	if !VerifySignature(secret, sig, body) {
		t.Fatal("expected sha256=-prefixed digest to verify")
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	sig := sign("s3cr3t", body)

	if VerifySignature("wrong-secret", sig, body) {
		t.Fatal("signature from a different secret must not verify")
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := "s3cr3t"
	sig := sign(secret, []byte(`{"ref":"refs/heads/main"}`))

	if VerifySignature(secret, sig, []byte(`{"ref":"refs/heads/evil"}`)) {
		t.Fatal("signature must not verify against a modified body")
	}
}

func TestVerifySignatureEmptyHeader(t *testing.T) {
	if VerifySignature("secret", "", []byte("body")) {
		t.Fatal("empty signature header must never verify")
	}
}

func TestVerifySignatureMalformedHex(t *testing.T) {
	if VerifySignature("secret", "not-hex-!!", []byte("body")) {
		t.Fatal("malformed hex digest must not verify")
	}
}
