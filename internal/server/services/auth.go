package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/auth"
	"github.com/dmitrijs2005/ecomauth/internal/server/cache"
	"github.com/dmitrijs2005/ecomauth/internal/server/config"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/passwords"
)

const (
	msgInvalidResetToken = "Invalid or expired token"
	msgNoAccount         = "No account found with that email address"
	msgUnknownUser       = "Unable to identify the user"
	msgPasswordUpdated   = "Password Updated Successfully"
	msgResetSent         = "Password reset instructions have been sent to your email"
	msgPasswordReset     = "Password has been reset successfully"
	msgPageTooLarge      = "page is out of range"
)

// MaxPage bounds the page number accepted by ListUsers so the row offset
// cannot overflow.
const MaxPage = 100000

// ResetMailer delivers reset links without blocking the caller.
type ResetMailer interface {
	SendResetEmail(to, resetURL string)
}

type Limiter interface {
	Allow(key string) bool
}

// UserInfo is the public view of a user.
type UserInfo struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Role              string     `json:"role"`
	IsActive          bool       `json:"is_active"`
	ApprovedAt        *time.Time `json:"approved_at"`
	PasswordChangedAt *time.Time `json:"password_changed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func NewUserInfo(u *models.User) UserInfo {
	return UserInfo{
		ID:                u.ID,
		Username:          u.Username(),
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Email:             u.Email,
		Role:              u.RoleName(),
		IsActive:          u.IsActive,
		ApprovedAt:        u.ApprovedAt,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// AuthService implements the auth use cases on top of the credential store,
// the token issuer and the reset signer. Every use case answers with a
// Result; domain errors are mapped to 4xx statuses and anything unexpected is
// logged and reported as a bare 500.
type AuthService struct {
	store   *CredentialStore
	issuer  *auth.Issuer
	signer  *auth.ResetSigner
	mailer  ResetMailer
	cache   cache.Client
	limiter Limiter
	logger  logging.Logger

	resetTTL     time.Duration
	cooldownDays int
	resetURLBase string
	now          func() time.Time
}

func NewAuthService(store *CredentialStore, issuer *auth.Issuer, signer *auth.ResetSigner,
	mailer ResetMailer, c cache.Client, limiter Limiter, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		store:        store,
		issuer:       issuer,
		signer:       signer,
		mailer:       mailer,
		cache:        c,
		limiter:      limiter,
		logger:       logger,
		resetTTL:     cfg.ResetTokenValidityDuration,
		cooldownDays: cfg.PasswordChangeRequiredDays,
		resetURLBase: cfg.ResetURLBase,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source, used by tests.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// Login checks the credentials and returns a fresh access/refresh pair.
func (s *AuthService) Login(ctx context.Context, username, password string) *Result {
	if !s.limiter.Allow(username) {
		return s.fail(ctx, "login", common.ErrRateLimited)
	}

	user, err := s.issuer.Authenticate(ctx, username, password)
	if err != nil {
		return s.fail(ctx, "login", err)
	}

	access, err := s.issuer.EncodeAccessToken(user)
	if err != nil {
		return s.fail(ctx, "login", err)
	}
	refresh, err := s.issuer.EncodeRefreshToken(user)
	if err != nil {
		return s.fail(ctx, "login", err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return Success(map[string]string{"access_token": access, "refresh_token": refresh})
}

// GetRefreshToken exchanges the bearer token in authorization for a new
// access token.
func (s *AuthService) GetRefreshToken(ctx context.Context, authorization string) *Result {
	token, err := s.issuer.ReadTokenFromHeader(authorization)
	if err != nil {
		return s.fail(ctx, "refresh", err)
	}

	access, err := s.issuer.Refresh(ctx, token)
	if err != nil {
		return s.fail(ctx, "refresh", err)
	}

	return Success(map[string]string{"access_token": access})
}

func (s *AuthService) GetUserInfo(ctx context.Context, authorization string) *Result {
	token, err := s.issuer.ReadTokenFromHeader(authorization)
	if err != nil {
		return s.fail(ctx, "user info", err)
	}
	claims, err := s.issuer.ExtractClaims(token)
	if err != nil {
		return s.fail(ctx, "user info", err)
	}

	user, err := s.store.Identify(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Failure(http.StatusBadRequest, msgUnknownUser, nil)
		}
		return s.fail(ctx, "user info", err)
	}

	return Success(NewUserInfo(user))
}

// ChangePassword replaces the password of a user who knows the current one.
// It is refused while the previous change is not older than the cooldown.
func (s *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) *Result {
	if !s.limiter.Allow(username) {
		return s.fail(ctx, "change password", common.ErrRateLimited)
	}

	user, err := s.issuer.Authenticate(ctx, username, oldPassword)
	if err != nil {
		return s.fail(ctx, "change password", err)
	}

	if err := passwords.Validate(newPassword); err != nil {
		return s.fail(ctx, "change password", err)
	}

	if user.PasswordChangedAt != nil {
		elapsed := int(math.Floor(s.now().Sub(*user.PasswordChangedAt).Hours() / 24))
		if elapsed <= s.cooldownDays {
			remaining := s.cooldownDays - elapsed
			return s.fail(ctx, "change password", common.NewError(
				common.ErrExpiredPassword, "",
				map[string]int{"remaining_days": remaining},
			))
		}
	}

	if _, err := s.store.UpdateUser(ctx, user.ID, UserUpdate{Password: &newPassword}); err != nil {
		return s.fail(ctx, "change password", err)
	}

	s.logger.Info(ctx, "password changed", "user_id", user.ID)
	return Success(msgPasswordUpdated)
}

// ForgotPassword mails a reset link to the owner of email. Delivery happens
// in the background and its failure does not affect the result.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) *Result {
	user, err := s.store.LookupActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Failure(http.StatusNotFound, msgNoAccount, nil)
		}
		return s.fail(ctx, "forgot password", err)
	}

	token, err := s.signer.Sign(map[string]any{"email": user.Email}, s.resetTTL)
	if err != nil {
		return s.fail(ctx, "forgot password", err)
	}

	link, err := s.resetURL(token)
	if err != nil {
		return s.fail(ctx, "forgot password", err)
	}

	s.mailer.SendResetEmail(user.Email, link)
	return Success(msgResetSent)
}

// ResetPassword sets a new password using a token from ForgotPassword. The
// cooldown does not apply, and each token works only once.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) *Result {
	signed, err := s.signer.VerifyToken(token)
	if err != nil {
		s.logger.Debug(ctx, "reset token rejected", "error", err)
		return Failure(http.StatusBadRequest, msgInvalidResetToken, nil)
	}
	email, _ := signed.Payload["email"].(string)
	if email == "" {
		return Failure(http.StatusBadRequest, msgInvalidResetToken, nil)
	}

	if err := passwords.Validate(newPassword); err != nil {
		return s.fail(ctx, "reset password", err)
	}

	user, err := s.store.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Failure(http.StatusNotFound, msgNoAccount, nil)
		}
		return s.fail(ctx, "reset password", err)
	}

	ttl := signed.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return Failure(http.StatusBadRequest, msgInvalidResetToken, nil)
	}
	first, err := s.cache.Claim(ctx, "reset:"+signed.ID, ttl)
	if err != nil {
		return s.fail(ctx, "reset password", fmt.Errorf("claiming reset token: %w", err))
	}
	if !first {
		return Failure(http.StatusBadRequest, msgInvalidResetToken, nil)
	}

	if _, err := s.store.UpdateUser(ctx, user.ID, UserUpdate{Password: &newPassword}); err != nil {
		s.cache.Release(ctx, "reset:"+signed.ID)
		return s.fail(ctx, "reset password", err)
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return Success(msgPasswordReset)
}

// RequireRole resolves the bearer token in authorization to a user holding
// one of the accepted roles. Role names are compared case-insensitively.
func (s *AuthService) RequireRole(ctx context.Context, authorization string, accepted ...string) (*models.User, error) {
	token, err := s.issuer.ReadTokenFromHeader(authorization)
	if err != nil {
		return nil, err
	}
	claims, err := s.issuer.ExtractClaims(token)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Identify(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidTokenHeader
		}
		return nil, err
	}
	if !user.IsActive || user.ApprovedAt == nil {
		return nil, common.ErrInvalidTokenHeader
	}

	for _, role := range accepted {
		if strings.EqualFold(role, user.RoleName()) {
			return user, nil
		}
	}
	return nil, common.ErrMissingRole
}

func (s *AuthService) CreateUser(ctx context.Context, in NewUser) *Result {
	if err := in.Validate(); err != nil {
		return s.fail(ctx, "create user", err)
	}

	user, err := s.store.CreateUser(ctx, in)
	if err != nil {
		return s.fail(ctx, "create user", err)
	}

	r := Success(NewUserInfo(user)).WithMessage("User created")
	r.Status = http.StatusCreated
	return r
}

func (s *AuthService) UpdateUser(ctx context.Context, id int64, upd UserUpdate) *Result {
	if err := upd.Validate(); err != nil {
		return s.fail(ctx, "update user", err)
	}

	user, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return s.fail(ctx, "update user", err)
	}

	return Success(NewUserInfo(user)).WithMessage("User updated")
}

func (s *AuthService) ListUsers(ctx context.Context, page, perPage int) *Result {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return Failure(http.StatusBadRequest, msgPageTooLarge, nil)
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	list, total, err := s.store.ListUsers(ctx, page, perPage)
	if err != nil {
		return s.fail(ctx, "list users", err)
	}

	out := make([]UserInfo, 0, len(list))
	for _, u := range list {
		out = append(out, NewUserInfo(u))
	}

	return Success(out).WithPagination(NewPagination(page, perPage, total))
}

func (s *AuthService) resetURL(token string) (string, error) {
	u, err := url.Parse(s.resetURLBase)
	if err != nil {
		return "", fmt.Errorf("bad reset url base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fail maps err to a failure Result.
func (s *AuthService) fail(ctx context.Context, op string, err error) *Result {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(ctx, op+" failed", "error", err)
		return Failure(status, "", nil)
	}
	return Failure(status, common.MessageOf(err), common.PayloadOf(err))
}

// StatusFor returns the HTTP status that reports err to a client.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrAuthentication),
		errors.Is(err, common.ErrMissingToken),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidTokenHeader):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrMissingRole):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrExpiredPassword),
		errors.Is(err, common.ErrBadSignature),
		errors.Is(err, common.ErrSignatureExpired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
