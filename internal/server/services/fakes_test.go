package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/dbx"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/auth"
	"github.com/dmitrijs2005/ecomauth/internal/server/cache"
	"github.com/dmitrijs2005/ecomauth/internal/server/config"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/passwords"
	"github.com/dmitrijs2005/ecomauth/internal/server/ratelimit"
	rolesrepo "github.com/dmitrijs2005/ecomauth/internal/server/repositories/roles"
	usersrepo "github.com/dmitrijs2005/ecomauth/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- fakes ---

// fakeUsersRepo keeps users in memory and hands out copies, so callers only
// see their changes after Update, like with a real database.
type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[int64]*models.User
	nextID int64

	getByIDCalls int
	failWith     error
	failUpdate   error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: make(map[int64]*models.User), nextID: 1}
}

func clone(u *models.User) *models.User {
	c := *u
	if u.Role != nil {
		r := *u.Role
		c.Role = &r
	}
	return &c
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrAlreadyExists
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.byID[u.ID] = clone(u)
	return u, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByIDCalls++
	return f.get(id)
}

func (f *fakeUsersRepo) GetByIDForUpdate(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeUsersRepo) get(id int64) (*models.User, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, u := range f.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := f.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, ok := f.byID[u.ID]; !ok {
		return common.ErrorNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	f.byID[u.ID] = clone(u)
	return nil
}

func (f *fakeUsersRepo) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*models.User
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, clone(f.byID[ids[i]]))
	}
	return out, nil
}

func (f *fakeUsersRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

// stored returns the current row for email, failing the test if absent.
func (f *fakeUsersRepo) stored(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

type fakeRolesRepo struct {
	mu     sync.Mutex
	byName map[string]*models.Role
}

func newFakeRolesRepo() *fakeRolesRepo {
	return &fakeRolesRepo{byName: map[string]*models.Role{
		"admin":         {ID: 1, Name: common.RoleAdmin},
		"business user": {ID: 2, Name: common.RoleBusinessUser},
	}}
}

func (f *fakeRolesRepo) GetByName(_ context.Context, name string) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byName[strings.ToLower(name)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRolesRepo) Ensure(_ context.Context, name, description string) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(name)
	if r, ok := f.byName[key]; ok {
		r.Description = description
		c := *r
		return &c, nil
	}
	r := &models.Role{ID: int64(len(f.byName) + 1), Name: name, Description: description}
	f.byName[key] = r
	c := *r
	return &c, nil
}

func (f *fakeRolesRepo) List(context.Context) ([]*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Role
	for _, r := range f.byName {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

type fakeRepoManager struct {
	users *fakeUsersRepo
	roles *fakeRolesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.users }
func (m *fakeRepoManager) Roles(dbx.DBTX) rolesrepo.Repository          { return m.roles }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to, url string
}

func (f *fakeMailer) SendResetEmail(to, resetURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, url: resetURL})
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- environment ---

type testEnv struct {
	svc    *AuthService
	store  *CredentialStore
	issuer *auth.Issuer
	signer *auth.ResetSigner
	users  *fakeUsersRepo
	roles  *fakeRolesRepo
	cache  *cache.Memory
	mailer *fakeMailer
	clock  *testClock
	cfg    *config.Config
}

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.LoginRatePerMinute = 0

	clock := &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	users := newFakeUsersRepo()
	roles := newFakeRolesRepo()
	rm := &fakeRepoManager{users: users, roles: roles}

	params := passwords.DefaultParams()
	params.Memory = 1024
	hasher := passwords.NewHasher(4, params)

	c := cache.NewMemory()
	store := NewCredentialStore(newSQLiteDB(t), rm, hasher, c, time.Minute, logging.Nop())
	store.SetClock(clock.now)

	issuer := auth.NewIssuer(store, hasher, []byte(cfg.SecretKey),
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	issuer.SetClock(clock.now)

	signer := auth.NewResetSigner([]byte(cfg.SecretKey))
	signer.SetClock(clock.now)

	mailer := &fakeMailer{}
	limiter := ratelimit.NewPerMinute(cfg.LoginRatePerMinute, cfg.LoginBurst)

	svc := NewAuthService(store, issuer, signer, mailer, c, limiter, logging.Nop(), cfg)
	svc.SetClock(clock.now)

	return &testEnv{
		svc: svc, store: store, issuer: issuer, signer: signer,
		users: users, roles: roles, cache: c, mailer: mailer, clock: clock, cfg: cfg,
	}
}

const testPassword = "Initial#Pass123"

func (e *testEnv) createUser(t *testing.T, email, role string) *models.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), NewUser{
		FirstName: "Test", LastName: "User", Email: email, Password: testPassword, Role: role,
	})
	require.NoError(t, err)
	return u
}

func bearer(token string) string {
	return "Bearer " + token
}
