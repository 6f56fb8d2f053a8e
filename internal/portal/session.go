package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resultsync-backend/lib/browser"
)

var tracer = otel.Tracer("resultsync.portal")

var (
	ErrLoginFailed         = errors.New("portal rejected the provided credentials")
	ErrChallengeUnresolved = errors.New("manual challenge was not completed in time")
)

// TransportError marks failures to reach the portal at all, as opposed
// to the portal answering with something we did not want.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("portal unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type SessionState int

const (
	SessionUnknown SessionState = iota
	SessionChecking
	SessionLoggingIn
	SessionAwaitingChallenge
	SessionValid
	SessionInvalid
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionChecking:
		return "checking"
	case SessionLoggingIn:
		return "logging_in"
	case SessionAwaitingChallenge:
		return "awaiting_manual_challenge"
	case SessionValid:
		return "valid"
	case SessionInvalid:
		return "invalid"
	case SessionFailed:
		return "failed"
	}
	return "unknown"
}

// CookieStore persists session cookies between runs so a still-valid
// server-side session can be reused without logging in again.
type CookieStore interface {
	LoadCookies(ctx context.Context, host string) ([]browser.Cookie, error)
	SaveCookies(ctx context.Context, host string, cookies []browser.Cookie) error
}

type SessionConfig struct {
	LoginURL        string
	SessionCheckURL string
	Username        string
	Password        string
	// LoginFieldTimeout bounds how long to wait for the login form to
	// render and for the post-submit redirect to land.
	LoginFieldTimeout time.Duration
	// ChallengeDeadline bounds the manual challenge window. Zero
	// disables the window and fails challenges immediately.
	ChallengeDeadline     time.Duration
	ChallengePollInterval time.Duration
}

// SessionController walks the session through its states: check the
// existing session first, log in only when that fails, and hand off to
// a human when the portal raises a challenge.
type SessionController struct {
	driver  browser.Driver
	cookies CookieStore
	rules   ClassifierRules
	cfg     SessionConfig

	state SessionState
	host  string
}

func NewSessionController(driver browser.Driver, cookies CookieStore, rules ClassifierRules, cfg SessionConfig) (*SessionController, error) {
	if cfg.LoginFieldTimeout <= 0 {
		cfg.LoginFieldTimeout = 15 * time.Second
	}
	if cfg.ChallengePollInterval <= 0 {
		cfg.ChallengePollInterval = 3 * time.Second
	}
	if cfg.SessionCheckURL == "" {
		return nil, errors.New("session check url is required")
	}
	u, err := url.Parse(cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}
	return &SessionController{
		driver:  driver,
		cookies: cookies,
		rules:   rules,
		cfg:     cfg,
		host:    u.Host,
	}, nil
}

func (c *SessionController) State() SessionState {
	return c.state
}

// Establish leaves the browser with a valid authenticated session or
// returns an error explaining why it could not.
func (c *SessionController) Establish(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "SessionController.Establish")
	defer span.End()

	c.restoreCookies(ctx)

	c.state = SessionChecking
	ok, err := c.CheckSession(ctx)
	if err != nil {
		// Treat a failed check as an invalid session rather than a
		// fatal error; the login attempt below will surface transport
		// problems if the portal really is down.
		slog.WarnContext(ctx, "session check failed, will attempt login", "err", err)
	}
	if ok {
		c.state = SessionValid
		span.SetAttributes(attribute.String("session.state", c.state.String()))
		c.persistCookies(ctx)
		return nil
	}

	c.state = SessionInvalid
	slog.InfoContext(ctx, "no valid session, logging in", "host", c.host)

	c.state = SessionLoggingIn
	res, err := c.login(ctx)
	if err != nil {
		c.state = SessionFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	switch res.Status {
	case LoginSuccess, LoginAlreadyAuthenticated:
		c.state = SessionValid
		c.persistCookies(ctx)
		span.SetAttributes(attribute.String("session.state", c.state.String()))
		return nil
	case LoginChallengeRequired:
		c.state = SessionAwaitingChallenge
		slog.WarnContext(ctx, "portal raised a manual challenge, waiting for operator",
			"deadline", c.cfg.ChallengeDeadline)
		if err := c.awaitChallenge(ctx); err != nil {
			c.state = SessionFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		c.state = SessionValid
		c.persistCookies(ctx)
		span.SetAttributes(attribute.String("session.state", c.state.String()))
		return nil
	default:
		c.state = SessionFailed
		err := ErrLoginFailed
		if res.ErrorText != "" {
			err = fmt.Errorf("%w: %s", ErrLoginFailed, res.ErrorText)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

// CheckSession navigates to a known in-area page and reports whether
// the session is still accepted. A positive answer requires two
// independent signals: the final URL stayed inside the authenticated
// area and an authenticated indicator element is present.
func (c *SessionController) CheckSession(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "SessionController.CheckSession")
	defer span.End()

	if err := c.driver.Navigate(ctx, c.cfg.SessionCheckURL); err != nil {
		return false, &TransportError{Op: "session check", Err: err}
	}
	page, err := browser.CapturePage(ctx, c.driver)
	if err != nil {
		return false, &TransportError{Op: "session check", Err: err}
	}

	state := Classify(page, c.rules)
	span.SetAttributes(attribute.String("page.state", state.String()))
	if state != StateAuthenticated {
		return false, nil
	}
	if !matchesAuthedURL(page.URL, c.rules) {
		slog.DebugContext(ctx, "authed indicator present but url outside authenticated area", "url", page.URL)
		return false, nil
	}
	if !anyVisible(page, c.rules.AuthedSelectors) {
		return false, nil
	}
	return true, nil
}

type LoginStatus int

const (
	LoginFailedStatus LoginStatus = iota
	LoginSuccess
	LoginAlreadyAuthenticated
	LoginChallengeRequired
)

type LoginResult struct {
	Status    LoginStatus
	ErrorText string
}

func (c *SessionController) login(ctx context.Context) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "SessionController.login")
	defer span.End()

	if err := c.driver.Navigate(ctx, c.cfg.LoginURL); err != nil {
		return LoginResult{}, &TransportError{Op: "login", Err: err}
	}

	usernameSel := joinSelectors(c.rules.UsernameSelectors)
	if err := c.driver.WaitVisible(ctx, usernameSel, c.cfg.LoginFieldTimeout); err != nil {
		// Some portals redirect straight into the authenticated area
		// when the session is still live; check before failing.
		loc, lerr := c.driver.Location(ctx)
		if lerr == nil && matchesAuthedURL(loc, c.rules) {
			return LoginResult{Status: LoginAlreadyAuthenticated}, nil
		}
		c.snapshot(ctx, "login-form-missing")
		return LoginResult{}, fmt.Errorf("login form never appeared: %w", err)
	}

	page, err := browser.CapturePage(ctx, c.driver)
	if err != nil {
		return LoginResult{}, &TransportError{Op: "login", Err: err}
	}
	if anyVisible(page, c.rules.ChallengeSelectors) {
		return LoginResult{Status: LoginChallengeRequired}, nil
	}

	// Type clears the field first, stale prefills would otherwise
	// corrupt the submitted credentials.
	if err := c.driver.Type(ctx, usernameSel, c.cfg.Username); err != nil {
		return LoginResult{}, fmt.Errorf("fill username: %w", err)
	}
	if err := c.driver.Type(ctx, joinSelectors(c.rules.PasswordSelectors), c.cfg.Password); err != nil {
		return LoginResult{}, fmt.Errorf("fill password: %w", err)
	}
	if err := c.driver.Click(ctx, joinSelectors(c.rules.SubmitSelectors)); err != nil {
		return LoginResult{}, fmt.Errorf("submit login form: %w", err)
	}

	page, err = c.awaitRedirect(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	switch Classify(page, c.rules) {
	case StateAuthenticated:
		return LoginResult{Status: LoginSuccess}, nil
	case StateAuth:
		if anyVisible(page, c.rules.ChallengeSelectors) {
			return LoginResult{Status: LoginChallengeRequired}, nil
		}
		c.snapshot(ctx, "login-rejected")
		return LoginResult{
			Status:    LoginFailedStatus,
			ErrorText: c.loginErrorText(page),
		}, nil
	default:
		// Landed somewhere unrecognized. Run the full session check
		// before declaring failure; a slow redirect can leave the
		// browser on an interstitial page.
		ok, cerr := c.CheckSession(ctx)
		if cerr != nil {
			return LoginResult{}, cerr
		}
		if ok {
			return LoginResult{Status: LoginSuccess}, nil
		}
		c.snapshot(ctx, "login-unrecognized-page")
		return LoginResult{Status: LoginFailedStatus}, nil
	}
}

// awaitRedirect polls until the page stops classifying as the login
// page or the timeout elapses, then returns the final capture.
func (c *SessionController) awaitRedirect(ctx context.Context) (browser.Page, error) {
	deadline := time.Now().Add(c.cfg.LoginFieldTimeout)
	for {
		page, err := browser.CapturePage(ctx, c.driver)
		if err != nil {
			return browser.Page{}, &TransportError{Op: "login redirect", Err: err}
		}
		if Classify(page, c.rules) != StateAuth || time.Now().After(deadline) {
			return page, nil
		}
		select {
		case <-ctx.Done():
			return browser.Page{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (c *SessionController) loginErrorText(page browser.Page) string {
	for _, sel := range c.rules.ErrorSelectors {
		text := strings.TrimSpace(page.Doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	// Portals frequently bounce back to a pristine login form on bad
	// credentials. No error text is still a failed login.
	return ""
}

func (c *SessionController) awaitChallenge(ctx context.Context) error {
	if c.cfg.ChallengeDeadline <= 0 {
		return ErrChallengeUnresolved
	}
	deadline := time.Now().Add(c.cfg.ChallengeDeadline)
	ticker := time.NewTicker(c.cfg.ChallengePollInterval)
	defer ticker.Stop()

	for {
		page, err := browser.CapturePage(ctx, c.driver)
		if err == nil && Classify(page, c.rules) == StateAuthenticated {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrChallengeUnresolved
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *SessionController) restoreCookies(ctx context.Context) {
	if c.cookies == nil {
		return
	}
	saved, err := c.cookies.LoadCookies(ctx, c.host)
	if err != nil {
		slog.WarnContext(ctx, "failed to load saved cookies", "host", c.host, "err", err)
		return
	}
	if len(saved) == 0 {
		return
	}
	if err := c.driver.SetCookies(ctx, saved); err != nil {
		slog.WarnContext(ctx, "failed to restore saved cookies", "host", c.host, "err", err)
	}
}

func (c *SessionController) persistCookies(ctx context.Context) {
	if c.cookies == nil {
		return
	}
	current, err := c.driver.Cookies(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read cookies from browser", "err", err)
		return
	}
	if err := c.cookies.SaveCookies(ctx, c.host, current); err != nil {
		slog.WarnContext(ctx, "failed to persist cookies", "host", c.host, "err", err)
	}
}

func (c *SessionController) snapshot(ctx context.Context, name string) {
	if err := c.driver.CaptureDiagnostic(ctx, name); err != nil {
		slog.WarnContext(ctx, "failed to capture diagnostic", "name", name, "err", err)
	}
}
