// Package httpapi exposes the auth service over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// AuthAPI is the part of services.AuthService served over HTTP.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) *services.Result
	GetRefreshToken(ctx context.Context, authorization string) *services.Result
	GetUserInfo(ctx context.Context, authorization string) *services.Result
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) *services.Result
	ForgotPassword(ctx context.Context, email string) *services.Result
	ResetPassword(ctx context.Context, token, newPassword string) *services.Result
	RequireRole(ctx context.Context, authorization string, accepted ...string) (*models.User, error)
	CreateUser(ctx context.Context, in services.NewUser) *services.Result
	UpdateUser(ctx context.Context, id int64, upd services.UserUpdate) *services.Result
	ListUsers(ctx context.Context, page, perPage int) *services.Result
}

var _ AuthAPI = (*services.AuthService)(nil)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HTTPServer struct {
	address string
	auth    AuthAPI
	db      Pinger
	logger  logging.Logger
	engine  *gin.Engine
}

func NewHTTPServer(a string, l logging.Logger, as AuthAPI, db Pinger) *HTTPServer {
	s := &HTTPServer{
		address: a,
		auth:    as,
		db:      db,
		logger:  l.With("module", "http_server"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the configured router.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", s.login)
		authGroup.GET("/refresh", s.refresh)
		authGroup.GET("/me", s.me)
		authGroup.POST("/change-password", s.changePassword)
		authGroup.POST("/forgot-password", s.forgotPassword)
		authGroup.POST("/reset-password", s.resetPassword)
	}

	users := v1.Group("/users")
	users.Use(s.requireRole(common.RoleAdmin))
	{
		users.GET("", s.listUsers)
		users.POST("", s.createUser)
		users.PATCH("/:id", s.updateUser)
	}

	return r
}

// Run serves until ctx is cancelled. It returns only after in-flight
// requests have drained or the shutdown timeout has passed.
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *HTTPServer) serve(ctx context.Context, ln net.Listener) error {

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-stopped
	return nil
}
