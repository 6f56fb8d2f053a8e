package commands

import (
	"context"
	"database/sql"
	"time"

	"resultsync-backend/lib/browser"
	"resultsync-backend/lib/configutil"
	"resultsync-backend/lib/osutil"
	"resultsync-backend/lib/sqliteutil"

	"resultsync-backend/internal/extract"
	"resultsync-backend/internal/ingest"
	"resultsync-backend/internal/pipeline"
	"resultsync-backend/internal/portal"
	"resultsync-backend/internal/records"
	"resultsync-backend/internal/records/db"
)

type PortalConfig struct {
	LoginURL          string                 `json:"login_url"`
	SessionCheckURL   string                 `json:"session_check_url"`
	ResultsURL        string                 `json:"results_url"`
	AuthedURLPrefixes []string               `json:"authed_url_prefixes"`
	Username          string                 `json:"username"`
	Password          string                 `json:"password"`
	Interactions      []pipeline.Interaction `json:"interactions"`
	// ChallengeDeadlineSeconds is how long an operator gets to solve a
	// CAPTCHA by hand. Zero fails challenges immediately, which is what
	// headless deployments want.
	ChallengeDeadlineSeconds int `json:"challenge_deadline_seconds"`
	// MaxWaitSeconds bounds the content stabilization wait.
	MaxWaitSeconds int `json:"max_wait_seconds"`
}

type BrowserConfig struct {
	// Headful shows the browser window, needed when an operator has to
	// solve challenges by hand.
	Headful   bool   `json:"headful"`
	UserAgent string `json:"user_agent"`
}

type Config struct {
	Db             string               `json:"db"`
	DiagnosticsDir string               `json:"diagnostics_dir"`
	Port           int                  `json:"port"`
	Portal         PortalConfig         `json:"portal"`
	Browser        BrowserConfig        `json:"browser"`
	Email          pipeline.EmailConfig `json:"email"`
	Ingest         ingest.Config        `json:"ingest"`
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		osutil.Fatal("failed to read config", err)
	}
	if cfg.Db == "" {
		cfg.Db = "resultsync.db"
	}
	if cfg.DiagnosticsDir == "" {
		cfg.DiagnosticsDir = ".dev/diagnostics"
	}
	if cfg.Port == 0 {
		cfg.Port = 8310
	}
	if cfg.Portal.MaxWaitSeconds == 0 {
		cfg.Portal.MaxWaitSeconds = 30
	}
	return cfg
}

func openStore(cfg Config) (records.Store, *sql.DB) {
	database, err := sqliteutil.OpenDB(db.Schema, cfg.Db)
	if err != nil {
		osutil.Fatal("failed to open db", err)
	}
	return records.NewStore(database), database
}

// buildPipeline boots a browser and wires the full scrape pipeline. The
// returned cleanup closes the browser.
func buildPipeline(ctx context.Context, cfg Config, store records.Store) (*pipeline.Pipeline, func()) {
	driver, err := browser.NewChromeDriver(ctx, browser.ChromeOptions{
		Headless:       !cfg.Browser.Headful,
		UserAgent:      cfg.Browser.UserAgent,
		DiagnosticsDir: cfg.DiagnosticsDir,
	})
	if err != nil {
		osutil.Fatal("failed to start browser", err)
	}

	rules := portal.DefaultClassifierRules()
	rules.AuthedURLPrefixes = cfg.Portal.AuthedURLPrefixes

	session, err := portal.NewSessionController(driver, store, rules, portal.SessionConfig{
		LoginURL:          cfg.Portal.LoginURL,
		SessionCheckURL:   cfg.Portal.SessionCheckURL,
		Username:          cfg.Portal.Username,
		Password:          cfg.Portal.Password,
		ChallengeDeadline: time.Duration(cfg.Portal.ChallengeDeadlineSeconds) * time.Second,
	})
	if err != nil {
		driver.Close()
		osutil.Fatal("failed to build session controller", err)
	}

	extractRules := extract.DefaultRuleset()
	detector := portal.NewStabilizeDetector(extractRules)
	detector.MaxWait = time.Duration(cfg.Portal.MaxWaitSeconds) * time.Second

	return &pipeline.Pipeline{
		Driver:       driver,
		Session:      session,
		Detector:     detector,
		Rules:        extractRules,
		Writer:       records.NewWriter(store),
		ResultsURL:   cfg.Portal.ResultsURL,
		Interactions: cfg.Portal.Interactions,
	}, func() { driver.Close() }
}
