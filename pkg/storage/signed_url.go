package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SignedURLSigner signs short-lived download links for stored documents.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns the expiry and signature authorising a download of documentID.
func (s *SignedURLSigner) Sign(documentID string) (int64, string, error) {
	if documentID == "" {
		return 0, "", fmt.Errorf("document id required")
	}
	if len(s.secret) == 0 {
		return 0, "", fmt.Errorf("signing secret missing")
	}
	expires := s.now().Add(s.ttl).Unix()
	return expires, s.signature(documentID, expires), nil
}

// URL renders a download link under basePath, e.g. /api/v1/documents/{id}/download.
func (s *SignedURLSigner) URL(basePath, documentID string) (string, error) {
	expires, signature, err := s.Sign(documentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/documents/%s/download?expires=%d&signature=%s", basePath, documentID, expires, signature), nil
}

// Verify checks the signature and expiry produced by Sign.
func (s *SignedURLSigner) Verify(documentID, rawExpires, signature string) error {
	expires, err := strconv.ParseInt(rawExpires, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	expected := s.signature(documentID, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid signature")
	}
	if s.now().After(time.Unix(expires, 0)) {
		return fmt.Errorf("link expired")
	}
	return nil
}

func (s *SignedURLSigner) signature(documentID string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(fmt.Sprintf("%s|%d", documentID, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}
