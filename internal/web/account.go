package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Joseda-hg/plantcare/internal/identity"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const loginPath = "/account/login"

type loginPage struct {
	Email     string
	ReturnURL string
	Error     string
}

func (s *Server) accountRoutes(e *echo.Echo) {
	g := e.Group("/account")
	g.GET("/login", s.loginForm)
	g.POST("/login", s.login, s.loginLimiter(), s.requireCSRF)
	g.POST("/logout", s.logout, s.requireCSRF)
}

// loginLimiter throttles login attempts per client address.
func (s *Server) loginLimiter() echo.MiddlewareFunc {
	if s.loginRate <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(s.loginRate) / 60),
		Burst:     s.loginRate,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Warn("login rate limit exceeded", "client", identifier)
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts. Try again in a minute.")
		},
	})
}

func (s *Server) loginForm(c echo.Context) error {
	page := loginPage{ReturnURL: safeReturnURL(c.QueryParam("ReturnUrl"))}
	return s.render(c, http.StatusOK, "login", s.newView(c, "Log in", page))
}

func (s *Server) login(c echo.Context) error {
	page := loginPage{
		Email:     c.FormValue("Email"),
		ReturnURL: safeReturnURL(c.FormValue("ReturnUrl")),
	}
	if s.identity == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	_, err := s.identity.Login(c.Response(), c.Request(), page.Email, c.FormValue("Password"))
	if errors.Is(err, identity.ErrInvalidCredentials) {
		page.Error = "Invalid login attempt."
		return s.render(c, http.StatusUnauthorized, "login", s.newView(c, "Log in", page))
	}
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, page.ReturnURL)
}

func (s *Server) logout(c echo.Context) error {
	if s.identity != nil {
		if err := s.identity.Logout(c.Response(), c.Request()); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusSeeOther, "/plants")
}

func loginURL(returnURL string) string {
	return loginPath + "?ReturnUrl=" + url.QueryEscape(returnURL)
}

// safeReturnURL only accepts local paths.
func safeReturnURL(value string) string {
	if value == "" || !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") || strings.HasPrefix(value, "/\\") {
		return "/plants"
	}
	return value
}
