// Package browser abstracts the headless-browser driver the portal
// pipeline runs against. Scraping logic never touches chromedp directly:
// it works on captured Page documents so it can run against a scripted
// driver in tests.
package browser

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Cookie is a driver-independent session cookie, serializable as JSON so
// the jar can be persisted across runs as an opaque blob.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	Secure   bool   `json:"secure"`
	HttpOnly bool   `json:"http_only"`
}

type Driver interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// WaitVisible blocks until an element matching the selector is
	// rendered, or the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Type clears the matched input and fills it with text. Clearing
	// first guards against browser autofill leaving stale characters.
	Type(ctx context.Context, selector, text string) error
	// SetValue sets the value of a select/input element and dispatches a
	// change event so the page's own listeners run.
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expr string, out any) error
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	// CaptureDiagnostic dumps a screenshot and the current markup into
	// the diagnostics directory under the given name.
	CaptureDiagnostic(ctx context.Context, name string) error
	Close() error
}

// Page is a point-in-time capture of the rendered document. Everything
// downstream of the driver (classifier, stabilization probe, extraction)
// consumes this instead of live DOM handles.
type Page struct {
	URL   string
	Title string
	Doc   *goquery.Document
}

// CapturePage snapshots the driver's current document.
func CapturePage(ctx context.Context, d Driver) (Page, error) {
	loc, err := d.Location(ctx)
	if err != nil {
		return Page{}, err
	}
	title, err := d.Title(ctx)
	if err != nil {
		return Page{}, err
	}
	markup, err := d.HTML(ctx)
	if err != nil {
		return Page{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Page{}, err
	}
	return Page{URL: loc, Title: title, Doc: doc}, nil
}
