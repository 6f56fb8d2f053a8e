package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

type ChromeOptions struct {
	Headless       bool
	UserAgent      string
	DiagnosticsDir string
}

// ChromeDriver drives a single headless chrome tab. One driver, one tab,
// one page at a time.
type ChromeDriver struct {
	browser        context.Context
	cancelBrowser  context.CancelFunc
	cancelAlloc    context.CancelFunc
	diagnosticsDir string
}

func NewChromeDriver(ctx context.Context, opts ChromeOptions) (*ChromeDriver, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// starts the browser process eagerly so a missing chrome binary
	// surfaces here instead of on the first navigation
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromeDriver{
		browser:        browserCtx,
		cancelBrowser:  cancelBrowser,
		cancelAlloc:    cancelAlloc,
		diagnosticsDir: opts.DiagnosticsDir,
	}, nil
}

// run executes chromedp actions on the browser tab, honoring the
// caller's deadline if it has one.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := d.browser
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var loc string
	err := d.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (d *ChromeDriver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var markup string
	err := d.run(ctx, chromedp.OuterHTML("html", &markup))
	return markup, err
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Type(ctx context.Context, selector, text string) error {
	return d.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	var ok bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	})()`, selector, value)
	err := d.run(ctx, chromedp.Evaluate(expr, &ok))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set value: no element matches %q", selector)
	}
	return nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	return d.run(ctx, chromedp.Evaluate(expr, out))
}

func (d *ChromeDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		raw = cookies
		return nil
	}))
	if err != nil {
		return nil, err
	}

	out := make([]Cookie, len(raw))
	for i, c := range raw {
		out[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  int64(c.Expires),
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
	}
	return out, nil
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			expires := cdp.TimeSinceEpoch(time.Unix(c.Expires, 0))
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HttpOnly).
				WithExpires(&expires).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (d *ChromeDriver) CaptureDiagnostic(ctx context.Context, name string) error {
	if d.diagnosticsDir == "" {
		return nil
	}
	err := os.MkdirAll(d.diagnosticsDir, 0755)
	if err != nil {
		return err
	}

	var screenshot []byte
	var markup string
	err = d.run(ctx,
		chromedp.FullScreenshot(&screenshot, 80),
		chromedp.OuterHTML("html", &markup),
	)
	if err != nil {
		return err
	}

	err = os.WriteFile(filepath.Join(d.diagnosticsDir, name+".png"), screenshot, 0644)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.diagnosticsDir, name+".html"), []byte(markup), 0644)
}

func (d *ChromeDriver) Close() error {
	d.cancelBrowser()
	d.cancelAlloc()
	return nil
}
