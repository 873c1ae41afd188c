// Package auth issues and validates the JWTs used by the backend: access and
// refresh tokens for API callers, and signed password reset tokens.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims carries the identity of the token holder. RefreshExpiresAt is only
// set on access tokens and marks the end of the window in which the token may
// be exchanged for a new one.
type Claims struct {
	jwt.RegisteredClaims
	UserID           int64            `json:"id"`
	Role             string           `json:"rls"`
	Type             string           `json:"typ"`
	RefreshExpiresAt *jwt.NumericDate `json:"rf_exp,omitempty"`
}

// UserLookup resolves token subjects and login names to users.
type UserLookup interface {
	LookupByEmail(ctx context.Context, email string) (*models.User, error)
	Identify(ctx context.Context, id int64) (*models.User, error)
}

type PasswordVerifier interface {
	Verify(ctx context.Context, plain, encoded string) (bool, error)
	VerifyDummy(ctx context.Context, plain string)
}

type Issuer struct {
	users      UserLookup
	passwords  PasswordVerifier
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(users UserLookup, passwords PasswordVerifier, secretKey []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		users:      users,
		passwords:  passwords,
		secretKey:  secretKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source, used by tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Authenticate returns the active user with the given email and password.
// Unknown email, inactive account and wrong password all yield
// common.ErrAuthentication.
func (i *Issuer) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := i.users.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			i.passwords.VerifyDummy(ctx, password)
			return nil, common.ErrAuthentication
		}
		return nil, err
	}

	ok, err := i.passwords.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok || !user.IsActive {
		return nil, common.ErrAuthentication
	}

	return user, nil
}

func (i *Issuer) EncodeAccessToken(user *models.User) (string, error) {
	now := i.now()
	return i.sign(user.ID, user.RoleName(), TokenTypeAccess, now, now.Add(i.accessTTL), now.Add(i.refreshTTL))
}

func (i *Issuer) EncodeRefreshToken(user *models.User) (string, error) {
	now := i.now()
	return i.sign(user.ID, user.RoleName(), TokenTypeRefresh, now, now.Add(i.refreshTTL), time.Time{})
}

func (i *Issuer) sign(userID int64, role, typ string, iat, exp, refreshExp time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		UserID: userID,
		Role:   role,
		Type:   typ,
	}
	if !refreshExp.IsZero() {
		claims.RefreshExpiresAt = jwt.NewNumericDate(refreshExp)
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secretKey)
}

// ReadTokenFromHeader extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func (i *Issuer) ReadTokenFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", common.ErrMissingToken
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], common.BearerScheme) {
		return "", common.ErrInvalidTokenHeader
	}

	return parts[1], nil
}

// ExtractClaims validates an access token. Expired tokens yield
// common.ErrTokenExpired, anything else that fails common.ErrInvalidToken.
// The token type is checked before expiry, so a refresh token is always
// invalid here.
func (i *Issuer) ExtractClaims(token string) (*Claims, error) {
	unverified, err := i.parse(token, jwt.WithoutClaimsValidation())
	if err != nil || unverified.Type != TokenTypeAccess {
		return nil, common.ErrInvalidToken
	}

	claims, err := i.parse(token, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Refresh exchanges a token for a new access token bound to the same user.
// An access token is accepted, expired or not, while its refresh window is
// open; the window end is carried over unchanged. A refresh token is accepted
// until it expires, and its expiry becomes the new refresh window.
func (i *Issuer) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := i.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", common.ErrInvalidToken
	}

	now := i.now()

	var window time.Time
	switch claims.Type {
	case TokenTypeAccess:
		if claims.RefreshExpiresAt == nil {
			return "", common.ErrInvalidToken
		}
		window = claims.RefreshExpiresAt.Time
	case TokenTypeRefresh:
		if claims.ExpiresAt == nil {
			return "", common.ErrInvalidToken
		}
		window = claims.ExpiresAt.Time
	default:
		return "", common.ErrInvalidToken
	}
	if !now.Before(window) {
		return "", common.ErrInvalidToken
	}

	user, err := i.users.Identify(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidToken
		}
		return "", err
	}
	if !user.IsActive {
		return "", common.ErrInvalidToken
	}

	return i.sign(user.ID, user.RoleName(), TokenTypeAccess, now, now.Add(i.accessTTL), window)
}

func (i *Issuer) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
