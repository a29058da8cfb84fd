package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/labstack/echo/v4"
)

type userData struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenData struct {
	Token  string `json:"token" validate:"required"`
	Action string `json:"action" validate:"required"`
}

type registerRequest struct {
	UserData  userData  `json:"user_data"`
	TokenData tokenData `json:"token_data"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type profileResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type usernameUpdate struct {
	CurrentUsername string `json:"current_username" validate:"required"`
	NewUsername     string `json:"new_username" validate:"required"`
}

type emailUpdate struct {
	CurrentEmail string `json:"current_email" validate:"required,email"`
	NewEmail     string `json:"new_email" validate:"required,email"`
	EmailToken   string `json:"email_token" validate:"required"`
}

type passwordUpdate struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// bind decodes and validates the request body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(v)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	_, err := s.users.Register(c.Request().Context(), services.RegisterInput{
		Username: req.UserData.Username,
		Email:    req.UserData.Email,
		Password: req.UserData.Password,
		Token:    req.TokenData.Token,
		Action:   req.TokenData.Action,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	token, err := s.users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     common.AccessTokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, loginResponse{AccessToken: token})
}

func (s *Server) showUserData(c echo.Context) error {
	p, err := s.users.Profile(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profileResponse{Username: p.Username, Email: p.Email})
}

func (s *Server) updateUsername(c echo.Context) error {
	var req usernameUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.users.UpdateUsername(c.Request().Context(), userID(c), req.CurrentUsername, req.NewUsername); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) updateEmail(c echo.Context) error {
	var req emailUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.users.UpdateEmail(c.Request().Context(), userID(c), req.CurrentEmail, req.NewEmail, req.EmailToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) updatePassword(c echo.Context) error {
	var req passwordUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.users.UpdatePassword(c.Request().Context(), userID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}
