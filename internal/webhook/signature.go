package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const githubSignaturePrefix = "sha256="

// VerifySignature checks a webhook body against either forge's signature
// scheme: Forgejo sends an unprefixed hex HMAC-SHA256 digest, GitHub
// prefixes it with "sha256=". Both are compared in constant time.
func VerifySignature(secret, signatureHeader string, body []byte) bool {
	if signatureHeader == "" {
		return false
	}

	hexDigest := strings.TrimPrefix(signatureHeader, githubSignaturePrefix)
	given, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(given, expected)
}
