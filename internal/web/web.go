package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/care"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/identity"
	"github.com/Joseda-hg/plantcare/internal/metrics"
	"github.com/Joseda-hg/plantcare/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = []string{
	"plants_index", "plants_details", "plants_form", "plants_delete",
	"tasks_index", "tasks_details", "tasks_form", "tasks_delete",
	"login", "error",
}

// csrfConfig keeps the token in a cookie so the instance that issues it on
// safe requests and the one that checks it on writes agree.
func csrfConfig(secure bool) middleware.CSRFConfig {
	return middleware.CSRFConfig{
		TokenLookup:    "form:_csrf",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	}
}

const (
	ctxKeySession   = "plantcare:session"
	ctxKeyPrincipal = "plantcare:principal"

	displayDateLayout = "2006-01-02 15:04"
	inputDateLayout   = "2006-01-02T15:04"
)

type Options struct {
	Store    *db.Store
	Identity *identity.Service
	Policy   *access.Policy
	Metrics  *metrics.Metrics
	Reporter *telemetry.Reporter
	Logger   *slog.Logger
	// CSRF turns on anti-forgery tokens for every unsafe request.
	CSRF bool
	// SecureCookies marks the anti-forgery cookie Secure.
	SecureCookies bool
	// LoginRate is the number of login attempts allowed per client and
	// minute. Zero disables the limit.
	LoginRate int
}

type Server struct {
	store      *db.Store
	identity   *identity.Service
	policy     *access.Policy
	plants     *care.PlantService
	tasks      *care.TaskService
	metrics    *metrics.Metrics
	reporter   *telemetry.Reporter
	logger     *slog.Logger
	csrfConfig middleware.CSRFConfig
	csrfCheck  echo.MiddlewareFunc
	loginRate  int
	templates  map[string]*template.Template
	echo       *echo.Echo
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == nil {
		policy = access.DefaultPolicy()
	}

	var recorder care.Recorder
	if opts.Metrics != nil {
		recorder = opts.Metrics
	}

	s := &Server{
		store:     opts.Store,
		identity:  opts.Identity,
		policy:    policy,
		plants:    care.NewPlantService(recorder),
		tasks:     care.NewTaskService(recorder),
		metrics:   opts.Metrics,
		reporter:  opts.Reporter,
		logger:    logger.With("module", "web"),
		loginRate: opts.LoginRate,
		templates: parseTemplates(),
	}
	if opts.CSRF {
		s.csrfConfig = csrfConfig(opts.SecureCookies)
		s.csrfCheck = middleware.CSRFWithConfig(s.csrfConfig)
	}
	s.echo = s.routes()
	return s
}

func parseTemplates() map[string]*template.Template {
	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(displayDateLayout)
		},
		"inputDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(inputDateLayout)
		},
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		templates[page] = template.Must(template.New(page).Funcs(funcs).
			ParseFS(templateFS, "templates/layout.tmpl", "templates/"+page+".tmpl"))
	}
	return templates
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen binds addr without serving yet, so a busy port is reported to the
// caller before anything runs in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.echo.Listener = ln
	return nil
}

// ListenAndServe serves on addr until ctx is cancelled. It reuses the
// listener from a previous Listen call.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.echo.Listener == nil {
		if err := s.Listen(addr); err != nil {
			return err
		}
	}
	addr = s.echo.Listener.Addr().String()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.logger.Info("web server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(s.requestLogger)
	if s.csrfCheck != nil {
		// Pages get their token here. Writes are checked by requireCSRF once
		// the access decision has been made.
		issue := s.csrfConfig
		issue.Skipper = func(c echo.Context) bool { return !isSafeMethod(c.Request().Method) }
		e.Use(middleware.CSRFWithConfig(issue))
	}
	e.Use(s.resolvePrincipal)
	e.Use(s.unitOfWork)

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/plants")
	})
	e.GET("/healthz", s.healthz)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.plantRoutes(e)
	s.taskRoutes(e)
	s.accountRoutes(e)
	s.apiRoutes(e.Group("/api"))
	return e
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		elapsed := time.Since(start)

		req := c.Request()
		status := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(req.Method, route, status, elapsed)
		s.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"request_id", requestID(c),
		)
		return nil
	}
}

func (s *Server) resolvePrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal := access.AnonymousPrincipal
		if s.identity != nil {
			principal = s.identity.Principal(c.Request())
		}
		c.Set(ctxKeyPrincipal, principal)
		return next(c)
	}
}

// unitOfWork gives every request its own db.Session. Whatever the handler
// did not save is rolled back when the request ends.
func (s *Server) unitOfWork(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session := s.store.Session()
		defer func() {
			if err := session.Close(); err != nil {
				s.logger.Warn("close session", "error", err, "request_id", requestID(c))
			}
		}()
		c.Set(ctxKeySession, session)
		return next(c)
	}
}

// guard runs the access policy for one route before its handler.
func (s *Server) guard(entity access.Entity, op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := s.policy.Authorize(principalFrom(c), entity, op)
			switch {
			case err == nil:
				s.metrics.RecordDecision(string(entity), string(op), "allowed")
				return s.requireCSRF(next)(c)
			case errors.Is(err, access.ErrUnauthenticated):
				s.metrics.RecordDecision(string(entity), string(op), "unauthenticated")
				return c.Redirect(http.StatusFound, loginURL(c.Request().URL.RequestURI()))
			default:
				s.metrics.RecordDecision(string(entity), string(op), "forbidden")
				return echo.NewHTTPError(http.StatusForbidden, "You do not have access to this page.")
			}
		}
	}
}

// requireCSRF validates the anti-forgery token of unsafe requests. It is a
// pass-through when CSRF protection is off.
func (s *Server) requireCSRF(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.csrfCheck == nil || isSafeMethod(c.Request().Method) {
			return next(c)
		}
		return s.csrfCheck(next)(c)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func (s *Server) healthz(c echo.Context) error {
	if err := s.store.DB.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type view struct {
	Title     string
	Principal access.Principal
	IsAdmin   bool
	CSRF      string
	Action    string
	Errors    care.FieldErrors
	Data      any
}

func (s *Server) newView(c echo.Context, title string, data any) view {
	principal := principalFrom(c)
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return view{
		Title:     title,
		Principal: principal,
		IsAdmin:   principal.HasRole(access.RoleAdmin),
		CSRF:      token,
		Data:      data,
	}
}

func (s *Server) render(c echo.Context, code int, page string, v view) error {
	tmpl, ok := s.templates[page]
	if !ok {
		return errors.New("unknown page " + page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		return err
	}
	return c.HTMLBlob(code, buf.Bytes())
}

type errorPage struct {
	Message       string
	CorrelationID string
}

// handleError renders HTTP errors as pages (or JSON under /api). Anything that
// is not an *echo.HTTPError is fatal: it is logged, reported and answered
// with 500 and the request id as reference.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An error occurred while processing your request."
	correlationID := ""

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	} else {
		correlationID = requestID(c)
		s.logger.Error("request failed",
			"error", err,
			"request_id", correlationID,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
		)
		s.reporter.Capture(err, map[string]string{
			"request_id": correlationID,
			"route":      c.Path(),
		})
	}

	if isAPIRequest(c) {
		body := map[string]string{"error": message}
		if correlationID != "" {
			body["correlationId"] = correlationID
		}
		if jsonErr := c.JSON(code, body); jsonErr != nil {
			s.logger.Error("write error response", "error", jsonErr)
		}
		return
	}

	v := s.newView(c, http.StatusText(code), errorPage{Message: message, CorrelationID: correlationID})
	if renderErr := s.render(c, code, "error", v); renderErr != nil {
		s.logger.Error("render error page", "error", renderErr)
		_ = c.String(code, message)
	}
}

func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func principalFrom(c echo.Context) access.Principal {
	if principal, ok := c.Get(ctxKeyPrincipal).(access.Principal); ok {
		return principal
	}
	return access.AnonymousPrincipal
}

func sessionFrom(c echo.Context) *db.Session {
	return c.Get(ctxKeySession).(*db.Session)
}

// idParam returns 0 for ids that do not parse, which the services treat as
// absent.
func idParam(c echo.Context) int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func notFound() error {
	return echo.NewHTTPError(http.StatusNotFound, "The requested record was not found.")
}
