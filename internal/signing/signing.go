// Package signing implements the HMAC helper used to mint and verify expiring
// artifact download tokens.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature binding a file version to an expiry.
func (s *Signer) Sign(fileID string, version int, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	// The canonical payload fixes field order so signatures are stable.
	payload := fmt.Sprintf("%s:%d:%d", fileID, version, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one in constant
// time.
func (s *Signer) Validate(fileID, version, expires, signature string) bool {
	v, err := strconv.Atoi(version)
	if err != nil {
		return false
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(fileID, v, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
