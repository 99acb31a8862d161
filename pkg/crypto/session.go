package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 7 * 24 * time.Hour

var (
	// ErrSessionInvalid is returned for malformed or tampered session values.
	ErrSessionInvalid = errors.New("session value is invalid")
	// ErrSessionExpired is returned for well-formed but stale sessions.
	ErrSessionExpired = errors.New("session has expired")
)

// SessionSigner issues and verifies HMAC-SHA256 signed session values of the
// form base64(userID|expiryUnix|signature). Sessions are stateless: there is
// no server-side session table to consult or clean up.
type SessionSigner struct {
	secret []byte
	now    func() time.Time
}

// NewSessionSigner returns a signer keyed with secret.
func NewSessionSigner(secret []byte) *SessionSigner {
	s := &SessionSigner{secret: make([]byte, len(secret)), now: time.Now}
	copy(s.secret, secret)
	return s
}

// Issue creates a signed session value for userID.
func (s *SessionSigner) Issue(userID int64) string {
	expiry := s.now().Add(SessionTTL).Unix()
	payload := fmt.Sprintf("%d|%d", userID, expiry)
	sig := s.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + sig))
}

// Verify checks a session value and returns the user id it was issued for.
func (s *SessionSigner) Verify(value string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return 0, ErrSessionInvalid
	}
	payload := parts[0] + "|" + parts[1]
	want := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(want), []byte(parts[2])) != 1 {
		return 0, ErrSessionInvalid
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	if s.now().Unix() > expiry {
		return 0, ErrSessionExpired
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	return userID, nil
}

func (s *SessionSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
