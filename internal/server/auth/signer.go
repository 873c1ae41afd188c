package auth

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ResetAudience scopes signed payloads to the password reset flow.
const ResetAudience = "password-reset"

var registeredKeys = []string{"iat", "exp", "nbf", "jti", "aud", "iss", "sub"}

// SignedPayload is a verified token together with its registered claims.
type SignedPayload struct {
	Payload   map[string]any
	ID        string
	ExpiresAt time.Time
}

// ResetSigner signs small payloads into expiring tokens. Its key is derived
// from the server secret, so tokens it produces are never valid access tokens
// and the other way round.
type ResetSigner struct {
	key []byte
	now func() time.Time
}

func NewResetSigner(secretKey []byte) *ResetSigner {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secretKey, nil, []byte(ResetAudience))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255*32 bytes
		panic(err)
	}

	return &ResetSigner{
		key: key,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source, used by tests.
func (s *ResetSigner) SetClock(now func() time.Time) {
	s.now = now
}

// Sign returns a token carrying payload that expires after ttl. Registered
// claim names in payload are overwritten.
func (s *ResetSigner) Sign(payload map[string]any, ttl time.Duration) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	claims["jti"] = uuid.NewString()
	claims["aud"] = ResetAudience

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify returns the payload of token with registered claims stripped.
func (s *ResetSigner) Verify(token string) (map[string]any, error) {
	signed, err := s.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return signed.Payload, nil
}

// VerifyToken checks signature, audience and expiry. An expired token yields
// common.ErrSignatureExpired, every other failure common.ErrBadSignature.
func (s *ResetSigner) VerifyToken(token string) (*SignedPayload, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ResetAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrSignatureExpired
		}
		return nil, common.ErrBadSignature
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, common.ErrBadSignature
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, common.ErrBadSignature
	}

	payload := make(map[string]any, len(claims))
	for k, v := range claims {
		payload[k] = v
	}
	for _, k := range registeredKeys {
		delete(payload, k)
	}

	return &SignedPayload{Payload: payload, ID: jti, ExpiresAt: exp.Time}, nil
}
