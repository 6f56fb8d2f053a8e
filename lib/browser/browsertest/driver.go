// Package browsertest provides a scripted in-memory implementation of
// browser.Driver for tests that exercise the login and scraping flow
// without a live browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"resultsync-backend/lib/browser"

	"github.com/PuerkitoBio/goquery"
)

type Page struct {
	Title string
	HTML  string
}

// Driver serves registered pages by URL. Hooks let a test script
// redirects, form submissions and content swaps.
type Driver struct {
	mu      sync.Mutex
	pages   map[string]Page
	current string
	cookies []browser.Cookie

	// Typed records every Type call by selector.
	Typed map[string]string
	// Values records every SetValue call by selector.
	Values map[string]string
	// Diagnostics records every CaptureDiagnostic name.
	Diagnostics []string

	// NavigateHook maps a requested URL to the URL actually landed on
	// (simulating redirects). Empty return means no redirect.
	NavigateHook func(url string) string
	// ClickHook returns the URL the click navigates to, or "" to stay.
	ClickHook func(selector string) string
	// NavigateErr, when set, fails every navigation. Simulates transport
	// failure.
	NavigateErr error
}

func NewDriver() *Driver {
	return &Driver{
		pages:  map[string]Page{},
		Typed:  map[string]string{},
		Values: map[string]string{},
	}
}

// SetPage registers (or replaces) the page served at a URL.
func (d *Driver) SetPage(url string, page Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = page
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	if d.NavigateErr != nil {
		d.mu.Unlock()
		return d.NavigateErr
	}
	hook := d.NavigateHook
	d.mu.Unlock()

	// Invoke the hook without holding the lock so it can call SetPage
	// and friends without deadlocking.
	if hook != nil {
		if redirected := hook(url); redirected != "" {
			url = redirected
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pages[url]; !ok {
		return fmt.Errorf("no page registered at %q", url)
	}
	d.current = url
	return nil
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[d.current].Title, nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[d.current].HTML, nil
}

func (d *Driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	markup := d.pages[d.current].HTML
	d.mu.Unlock()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait visible: %q never appeared", selector)
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Typed[selector] = text
	return nil
}

func (d *Driver) SetValue(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Values[selector] = value
	return nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	hook := d.ClickHook
	d.mu.Unlock()

	// Invoke the hook without holding the lock so it can call SetPage
	// and friends without deadlocking.
	var url string
	if hook != nil {
		url = hook(selector)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if url != "" {
		if _, ok := d.pages[url]; !ok {
			return fmt.Errorf("no page registered at %q", url)
		}
		d.current = url
	}
	return nil
}

func (d *Driver) Evaluate(ctx context.Context, expr string, out any) error {
	return fmt.Errorf("browsertest: evaluate is not scripted")
}

func (d *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Cookie{}, d.cookies...), nil
}

func (d *Driver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = append([]browser.Cookie{}, cookies...)
	return nil
}

// AddCookie seeds a cookie as if the site had set it.
func (d *Driver) AddCookie(c browser.Cookie) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = append(d.cookies, c)
}

func (d *Driver) CaptureDiagnostic(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Diagnostics = append(d.Diagnostics, name)
	return nil
}

func (d *Driver) Close() error { return nil }
