// Package portal drives login state and content stabilization against
// the institutional results portal. The portal offers no API contract:
// everything here is heuristic classification over rendered pages.
package portal

import (
	"strings"

	"resultsync-backend/lib/browser"
	"resultsync-backend/lib/htmlutil"
)

type PageState int

const (
	// StateUnknown means "not confirmed authenticated". Callers must
	// treat it as requiring re-validation, never as success.
	StateUnknown PageState = iota
	StateAuth
	StateAuthenticated
)

func (s PageState) String() string {
	switch s {
	case StateAuth:
		return "auth_page"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// ClassifierRules are the injectable heuristics for deciding what kind
// of page the browser is looking at.
type ClassifierRules struct {
	// AuthMarkers are lowercase substrings checked against the URL and
	// title of a suspected login page.
	AuthMarkers []string
	// UsernameSelectors/PasswordSelectors locate the credential inputs.
	// Both must be present for a page to classify as an auth page.
	UsernameSelectors []string
	PasswordSelectors []string
	// SubmitSelectors locate the login submit control.
	SubmitSelectors []string
	// ChallengeSelectors locate CAPTCHA or similar challenge inputs.
	ChallengeSelectors []string
	// ErrorSelectors locate login error banners.
	ErrorSelectors []string
	// AuthedSelectors are post-login indicator elements: a logout
	// control, welcome label, dashboard link or records-page link.
	AuthedSelectors []string
	// AuthedURLPrefixes match URLs inside the authenticated area.
	AuthedURLPrefixes []string
}

func DefaultClassifierRules() ClassifierRules {
	return ClassifierRules{
		AuthMarkers: []string{"login", "signin", "sign-in", "auth"},
		UsernameSelectors: []string{
			"input[name=username]", "input[name=user]", "input[name=regno]", "input#username",
		},
		PasswordSelectors: []string{
			"input[type=password]",
		},
		SubmitSelectors: []string{
			"button[type=submit]", "input[type=submit]", "#loginButton",
		},
		ChallengeSelectors: []string{
			"input[name=captcha]", "#captcha", ".g-recaptcha", "img.captcha-image",
		},
		ErrorSelectors: []string{
			".alert-danger", ".error-message", "#loginError", ".validation-summary-errors",
		},
		AuthedSelectors: []string{
			"a[href*=logout]", "#logoutButton", ".welcome-user", "#lblWelcome",
			"a[href*=dashboard]", "a[href*=results]",
		},
	}
}

func joinSelectors(selectors []string) string {
	return strings.Join(selectors, ", ")
}

func anyVisible(page browser.Page, selectors []string) bool {
	if len(selectors) == 0 {
		return false
	}
	return htmlutil.HasVisible(page.Doc, joinSelectors(selectors))
}

func matchesAuthMarker(page browser.Page, rules ClassifierRules) bool {
	url := strings.ToLower(page.URL)
	title := strings.ToLower(page.Title)
	for _, marker := range rules.AuthMarkers {
		if strings.Contains(url, marker) || strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

func matchesAuthedURL(url string, rules ClassifierRules) bool {
	for _, prefix := range rules.AuthedURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// Classify decides whether the page is the login page, an authenticated
// page, or neither. An auth marker alone is not enough to call a page a
// login page: both credential inputs must actually be present.
func Classify(page browser.Page, rules ClassifierRules) PageState {
	if matchesAuthMarker(page, rules) &&
		anyVisible(page, rules.UsernameSelectors) &&
		anyVisible(page, rules.PasswordSelectors) {
		return StateAuth
	}

	if anyVisible(page, rules.AuthedSelectors) || matchesAuthedURL(page.URL, rules) {
		return StateAuthenticated
	}

	return StateUnknown
}
