package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// name accepts either field; username wins when both are sent.
func (r loginRequest) name() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type changePasswordRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func render(c *gin.Context, r *services.Result) {
	c.JSON(r.Status, r)
}

func badRequest(c *gin.Context) {
	render(c, services.Failure(http.StatusBadRequest, "", nil))
}

func (s *HTTPServer) health(c *gin.Context) {
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	render(c, s.auth.Login(c.Request.Context(), req.name(), req.Password))
}

func (s *HTTPServer) refresh(c *gin.Context) {
	render(c, s.auth.GetRefreshToken(c.Request.Context(), c.GetHeader(common.AuthorizationHeaderName)))
}

func (s *HTTPServer) me(c *gin.Context) {
	render(c, s.auth.GetUserInfo(c.Request.Context(), c.GetHeader(common.AuthorizationHeaderName)))
}

func (s *HTTPServer) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	username := req.Username
	if username == "" {
		username = req.Email
	}
	render(c, s.auth.ChangePassword(c.Request.Context(), username, req.OldPassword, req.NewPassword))
}

func (s *HTTPServer) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	render(c, s.auth.ForgotPassword(c.Request.Context(), req.Email))
}

// resetPassword takes the token from X-Reset-Token, falling back to the body.
func (s *HTTPServer) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	token := c.GetHeader(common.ResetTokenHeaderName)
	if token == "" {
		token = req.Token
	}
	render(c, s.auth.ResetPassword(c.Request.Context(), token, req.NewPassword))
}

func (s *HTTPServer) listUsers(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		badRequest(c)
		return
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if err != nil {
		badRequest(c)
		return
	}
	render(c, s.auth.ListUsers(c.Request.Context(), page, perPage))
}

func (s *HTTPServer) createUser(c *gin.Context) {
	var in services.NewUser
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c)
		return
	}

	r := s.auth.CreateUser(c.Request.Context(), in)
	if r.Success {
		if admin := currentUser(c); admin != nil {
			s.logger.Info(c.Request.Context(), "user created", "admin_id", admin.ID, "email", in.Email)
		}
	}
	render(c, r)
}

func (s *HTTPServer) updateUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(c)
		return
	}

	var upd services.UserUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c)
		return
	}

	r := s.auth.UpdateUser(c.Request.Context(), id, upd)
	if r.Success {
		if admin := currentUser(c); admin != nil {
			s.logger.Info(c.Request.Context(), "user updated", "admin_id", admin.ID, "user_id", id)
		}
	}
	render(c, r)
}
