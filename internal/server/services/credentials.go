// Package services contains server-side business logic: the credential store
// over the user and role repositories, and the auth service that implements
// login, token refresh, password change and reset, and the role gate.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/dbx"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/cache"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/repositories/repomanager"
)

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
}

// NewUser is the input of CreateUser. Role is a role name and may be empty.
type NewUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// UserUpdate lists the fields to change; nil fields are left alone. A Role
// that does not name an existing role clears the user's role.
type UserUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

type CredentialStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	cache       cache.Client
	cacheTTL    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewCredentialStore(db *sql.DB, m repomanager.RepositoryManager, hasher PasswordHasher,
	c cache.Client, cacheTTL time.Duration, logger logging.Logger) *CredentialStore {
	return &CredentialStore{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		cache:       c,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source, used by tests.
func (s *CredentialStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *CredentialStore) LookupByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByEmail(ctx, strings.TrimSpace(email))
}

func (s *CredentialStore) LookupActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetActiveByEmail(ctx, strings.TrimSpace(email))
}

// Identity is the value stored in the token subject.
func (s *CredentialStore) Identity(user *models.User) int64 {
	return user.ID
}

// Identify loads a user by id, going through the cache first. The returned
// user never carries PasswordHash; credential checks go through
// LookupByEmail.
func (s *CredentialStore) Identify(ctx context.Context, id int64) (*models.User, error) {
	key := userCacheKey(id)

	if raw, ok := s.cache.Get(ctx, key); ok {
		var user models.User
		if err := json.Unmarshal(raw, &user); err == nil {
			user.PasswordHash = ""
			return &user, nil
		}
		s.cache.Delete(ctx, key)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""

	if raw, err := json.Marshal(user); err == nil {
		s.cache.Set(ctx, key, raw, s.cacheTTL)
	}

	return user, nil
}

// CreateUser stores a new active, approved user. If the email belongs to an
// inactive account that account is reactivated with the given details
// instead; an active account with that email yields common.ErrAlreadyExists.
func (s *CredentialStore) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	email := strings.TrimSpace(in.Email)

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var user *models.User

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)

		role, err := s.resolveRole(ctx, tx, in.Role)
		if err != nil {
			return err
		}

		existing, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.IsActive:
			return common.ErrAlreadyExists
		case err == nil:
			existing, err = users.GetByIDForUpdate(ctx, existing.ID)
			if err != nil {
				return err
			}
			existing.FirstName = in.FirstName
			existing.LastName = in.LastName
			existing.PasswordHash = hash
			existing.Role = role
			existing.IsActive = true
			if existing.ApprovedAt == nil {
				now := s.now()
				existing.ApprovedAt = &now
			}
			if err := users.Update(ctx, existing); err != nil {
				return err
			}
			user = existing
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		now := s.now()
		user, err = users.Create(ctx, &models.User{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
			ApprovedAt:   &now,
			Role:         role,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(ctx, userCacheKey(user.ID))
	return user, nil
}

// UpdateUser applies upd to the user with the given id. The row is locked for
// the duration of the transaction, so concurrent updates are applied one
// after the other and the last one wins.
func (s *CredentialStore) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*models.User, error) {
	var hash string
	if upd.Password != nil {
		var err error
		if hash, err = s.hasher.Hash(ctx, *upd.Password); err != nil {
			return nil, fmt.Errorf("error hashing password: %w", err)
		}
	}

	var user *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)

		var err error
		user, err = users.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if upd.FirstName != nil {
			user.FirstName = *upd.FirstName
		}
		if upd.LastName != nil {
			user.LastName = *upd.LastName
		}
		if upd.Email != nil {
			email := strings.TrimSpace(*upd.Email)
			other, err := users.GetByEmail(ctx, email)
			switch {
			case err == nil && other.ID != id:
				return common.ErrAlreadyExists
			case err != nil && !errors.Is(err, common.ErrorNotFound):
				return err
			}
			user.Email = email
		}
		if upd.Password != nil {
			now := s.now()
			user.PasswordHash = hash
			user.PasswordChangedAt = &now
		}
		if upd.Role != nil {
			if user.Role, err = s.resolveRole(ctx, tx, *upd.Role); err != nil {
				return err
			}
		}
		if upd.IsActive != nil {
			user.IsActive = *upd.IsActive
		}

		return users.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(ctx, userCacheKey(id))
	return user, nil
}

// ListUsers returns one page of users ordered by id together with the total
// number of users. Pages start at 1.
func (s *CredentialStore) ListUsers(ctx context.Context, page, perPage int) ([]*models.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	repo := s.repomanager.Users(s.db)

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := repo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// EnsureRole creates the role if needed and refreshes its description.
func (s *CredentialStore) EnsureRole(ctx context.Context, name, description string) (*models.Role, error) {
	return s.repomanager.Roles(s.db).Ensure(ctx, name, description)
}

// resolveRole maps a role name to a stored role. Empty or unknown names give
// a nil role.
func (s *CredentialStore) resolveRole(ctx context.Context, db dbx.DBTX, name string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	role, err := s.repomanager.Roles(db).GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "unknown role, leaving user without role", "role", name)
			return nil, nil
		}
		return nil, err
	}
	return role, nil
}

func userCacheKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
