package renderer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultTimeout bounds a single render when Options.Timeout is zero.
const DefaultTimeout = 90 * time.Second

// Options configures the headless browser.
type Options struct {
	BinPath string // empty lets rod find or download a browser
	Timeout time.Duration
}

type renderResult struct {
	title string
	html  string
	err   error
}

// RodRenderer returns a RenderFunc bound to opts.
func RodRenderer(opts Options) RenderFunc {
	return func(url string) (string, string, error) {
		return RenderPageWithRod(url, opts)
	}
}

// RenderPageWithRod loads url in a headless browser, waits for scripts to
// settle and returns the page title and full HTML.
func RenderPageWithRod(url string, opts Options) (string, string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log.Printf("Rod: rendering %s (timeout %v)", url, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resultChan := make(chan renderResult, 1)
	go func() {
		title, html, err := renderWithRod(ctx, url, opts.BinPath)
		resultChan <- renderResult{title: title, html: html, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			log.Printf("Rod: rendering failed for %s: %v", url, res.err)
		}
		return res.title, res.html, res.err
	case <-ctx.Done():
		log.Printf("Rod: rendering timeout after %v for %s", timeout, url)
		return "", "", fmt.Errorf("rendering timeout after %v for URL: %s", timeout, url)
	}
}

func renderWithRod(ctx context.Context, url, binPath string) (string, string, error) {
	browser := rod.New().Context(ctx)

	if binPath != "" {
		l := launcher.New().Bin(binPath)
		//nolint:errcheck
		defer l.Cleanup()

		u, err := l.Launch()
		if err != nil {
			return "", "", fmt.Errorf("failed to launch rod with custom path %s: %w", binPath, err)
		}
		browser = browser.ControlURL(u)
	}

	if err := browser.Connect(); err != nil {
		return "", "", fmt.Errorf("failed to connect to rod browser: %w", err)
	}
	//nolint:errcheck
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", "", fmt.Errorf("failed to create page for %s: %w", url, err)
	}
	//nolint:errcheck
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		log.Printf("Rod: error waiting for page load for %s: %v. Proceeding anyway.", url, err)
	}

	//nolint:errcheck
	page.Timeout(30 * time.Second).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)()

	html, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("failed to get HTML content for %s: %w", url, err)
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}
	return title, html, nil
}
