package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resultsync-backend/lib/browser/browsertest"
	"resultsync-backend/lib/testutil"

	"resultsync-backend/internal/extract"
	"resultsync-backend/internal/portal"
	"resultsync-backend/internal/records"
	"resultsync-backend/internal/records/db"
)

const (
	loginURL     = "https://portal.example.edu/login"
	dashboardURL = "https://portal.example.edu/student/dashboard"
	resultsURL   = "https://portal.example.edu/student/results"
	authedPrefix = "https://portal.example.edu/student/"
)

const loginHTML = `<html><body>
<form method="post">
	<input name="username" type="text">
	<input name="password" type="password">
	<button type="submit">Log in</button>
</form>
</body></html>`

const dashboardHTML = `<html><body>
<a href="/auth/logout">Log out</a>
<a href="/student/results">My Results</a>
</body></html>`

const resultsHTML = `<html><body>
<a href="/auth/logout">Log out</a>
<span id="lblRegNo">U2021/1234</span>
<span id="lblStudentName">Ada Obi</span>
<h3>First Semester 2023/2024</h3>
<table>
	<tr><th>Code</th><th>Course Title</th><th>Credits</th><th>Total</th><th>Grade</th></tr>
	<tr><td>CSC101</td><td>Intro to Computing</td><td>3</td><td>82</td><td>A</td></tr>
	<tr><td>MTH102</td><td>Calculus I</td><td>4</td><td>71</td><td>B</td></tr>
</table>
</body></html>`

func testRules() portal.ClassifierRules {
	rules := portal.DefaultClassifierRules()
	rules.AuthedURLPrefixes = []string{authedPrefix}
	return rules
}

func setupPipeline(t *testing.T, driver *browsertest.Driver) (*Pipeline, records.Store) {
	t.Helper()
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "pipeline",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	store := records.NewStore(res.DB)
	ctl, err := portal.NewSessionController(driver, store, testRules(), portal.SessionConfig{
		LoginURL:          loginURL,
		SessionCheckURL:   dashboardURL,
		Username:          "u1234567",
		Password:          "hunter2",
		LoginFieldTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	detector := portal.NewStabilizeDetector(extract.DefaultRuleset())
	detector.Interval = 5 * time.Millisecond
	detector.MaxWait = 100 * time.Millisecond

	return &Pipeline{
		Driver:     driver,
		Session:    ctl,
		Detector:   detector,
		Rules:      extract.DefaultRuleset(),
		Writer:     records.NewWriter(store),
		ResultsURL: resultsURL,
		Interactions: []Interaction{
			{Selector: "#termSelect", Value: "2023/2024-1"},
			{Selector: "#viewResults"},
		},
	}, store
}

func scriptPortal(driver *browsertest.Driver) {
	driver.SetPage(loginURL, browsertest.Page{Title: "Student Login", HTML: loginHTML})
	driver.SetPage(dashboardURL, browsertest.Page{Title: "Dashboard", HTML: dashboardHTML})
	driver.SetPage(resultsURL, browsertest.Page{Title: "Results", HTML: resultsHTML})

	loggedIn := false
	driver.NavigateHook = func(url string) string {
		if !loggedIn && url != loginURL {
			return loginURL
		}
		return ""
	}
	driver.ClickHook = func(selector string) string {
		if !loggedIn {
			loggedIn = true
			return dashboardURL
		}
		return ""
	}
}

func TestRunEndToEnd(t *testing.T) {
	driver := browsertest.NewDriver()
	scriptPortal(driver)
	p, store := setupPipeline(t, driver)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageDone, summary.Stage)
	require.True(t, summary.Success)
	require.True(t, summary.Stabilized)
	require.Equal(t, 2, summary.Extracted)
	require.Equal(t, 2, summary.Persist.Saved)
	require.NotEmpty(t, summary.RunID)

	// Scripted interactions reached the page.
	require.Equal(t, "2023/2024-1", driver.Values["#termSelect"])

	saved, err := store.List(context.Background(), "U2021/1234")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, "CSC101", saved[0].Code)
	require.Equal(t, "First Semester 2023/2024", saved[0].Period)
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	driver := browsertest.NewDriver()
	scriptPortal(driver)
	p, _ := setupPipeline(t, driver)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Persist.Saved)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, 0, second.Persist.Saved)
	require.Equal(t, first.Persist.Saved, second.Persist.Skipped)
}

func TestRunReportsContentNotFound(t *testing.T) {
	driver := browsertest.NewDriver()
	scriptPortal(driver)
	driver.SetPage(resultsURL, browsertest.Page{
		Title: "Results",
		HTML:  `<html><body><a href="/auth/logout">Log out</a><p>No results published yet.</p></body></html>`,
	})
	p, _ := setupPipeline(t, driver)

	summary, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrContentNotFound)
	require.Equal(t, StageExtract, summary.Stage)
	require.False(t, summary.Stabilized)
	require.Equal(t, 0, summary.Extracted)
	require.NotEmpty(t, driver.Diagnostics, "failed runs must leave a diagnostic capture")
}

func TestRunSurfacesLoginFailure(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.SetPage(loginURL, browsertest.Page{Title: "Student Login", HTML: loginHTML})
	driver.NavigateHook = func(url string) string {
		if url != loginURL {
			return loginURL
		}
		return ""
	}
	// Clicking submit leaves the browser on the login form.
	p, _ := setupPipeline(t, driver)

	summary, err := p.Run(context.Background())
	require.ErrorIs(t, err, portal.ErrLoginFailed)
	require.Equal(t, StageSession, summary.Stage)
	require.False(t, summary.Success)
}
