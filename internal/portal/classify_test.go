package portal

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"resultsync-backend/lib/browser"
)

func makePage(t *testing.T, url, title, html string) browser.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return browser.Page{URL: url, Title: title, Doc: doc}
}

const loginFormHTML = `<html><body>
<form method="post">
	<input name="username" type="text">
	<input name="password" type="password">
	<button type="submit">Log in</button>
</form>
</body></html>`

func TestClassifyAuthPage(t *testing.T) {
	rules := DefaultClassifierRules()
	page := makePage(t, "https://portal.example.edu/login", "Student Login", loginFormHTML)
	require.Equal(t, StateAuth, Classify(page, rules))
}

func TestAuthMarkerAloneIsNotAnAuthPage(t *testing.T) {
	rules := DefaultClassifierRules()

	// A help article about logging in has the marker in its URL and
	// title but no credential inputs.
	page := makePage(t, "https://portal.example.edu/help/login", "How to Login",
		`<html><body><p>Visit the portal and sign in.</p></body></html>`)
	require.Equal(t, StateUnknown, Classify(page, rules))

	// Username field without a password field is not a login page
	// either (search boxes are a common false positive).
	page = makePage(t, "https://portal.example.edu/login", "Login",
		`<html><body><input name="username" type="text"></body></html>`)
	require.Equal(t, StateUnknown, Classify(page, rules))
}

func TestClassifyAuthenticatedByIndicator(t *testing.T) {
	rules := DefaultClassifierRules()
	page := makePage(t, "https://portal.example.edu/student/home", "Dashboard",
		`<html><body><a href="/auth/logout">Log out</a></body></html>`)
	require.Equal(t, StateAuthenticated, Classify(page, rules))
}

func TestClassifyAuthenticatedByURLPrefix(t *testing.T) {
	rules := DefaultClassifierRules()
	rules.AuthedURLPrefixes = []string{"https://portal.example.edu/student/"}
	page := makePage(t, "https://portal.example.edu/student/results", "Results",
		`<html><body><p>Select a term.</p></body></html>`)
	require.Equal(t, StateAuthenticated, Classify(page, rules))
}

func TestClassifyUnknown(t *testing.T) {
	rules := DefaultClassifierRules()
	page := makePage(t, "https://portal.example.edu/maintenance", "Scheduled Maintenance",
		`<html><body><h1>Back soon</h1></body></html>`)
	require.Equal(t, StateUnknown, Classify(page, rules))
}

func TestAuthPageTakesPrecedenceOverIndicators(t *testing.T) {
	// A login page that links to the dashboard in its footer must still
	// classify as the login page, not as authenticated.
	rules := DefaultClassifierRules()
	page := makePage(t, "https://portal.example.edu/login", "Login",
		loginFormHTML+`<a href="/student/dashboard">Dashboard</a>`)
	require.Equal(t, StateAuth, Classify(page, rules))
}
