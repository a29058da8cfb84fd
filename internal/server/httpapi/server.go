// Package httpapi exposes the account service over HTTP/JSON using echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// AccountService is the business logic behind the routes.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Profile(ctx context.Context, userID int64) (*services.Profile, error)
	UpdateUsername(ctx context.Context, userID int64, current, username string) error
	UpdateEmail(ctx context.Context, userID int64, current, email, token string) error
	UpdatePassword(ctx context.Context, userID int64, current, password string) error
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Server struct {
	address      string
	echo         *echo.Echo
	users        AccountService
	tokens       TokenVerifier
	logger       logging.Logger
	cookieMaxAge time.Duration
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i any) error {
	return r.v.Struct(i)
}

// NewServer builds the echo instance and registers every route.
func NewServer(address string, l logging.Logger, users AccountService, tokens TokenVerifier, cookieMaxAge time.Duration) *Server {
	s := &Server{
		address:      address,
		users:        users,
		tokens:       tokens,
		logger:       l.With("module", "http_server"),
		cookieMaxAge: cookieMaxAge,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			s.logger.Info(c.Request().Context(), "request",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	e.POST("/register", s.register)
	e.POST("/auth/login", s.login)

	authed := e.Group("", s.accessTokenMiddleware)
	authed.GET("/show/user_data", s.showUserData)
	authed.PATCH("/update/username", s.updateUsername)
	authed.PATCH("/update/email", s.updateEmail)
	authed.PATCH("/update/password", s.updatePassword)

	s.echo = e
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled and returns once in-flight requests have
// finished or the shutdown timeout elapsed.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- s.echo.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-stopped
		return err
	}
	return <-stopped
}
