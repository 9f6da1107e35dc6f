package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// ErrRendererClosed is returned after Shutdown.
var ErrRendererClosed = errors.New("pdf renderer is shut down")

// PDFRenderer converts a complete HTML document to PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// ChromeRenderer prints HTML through headless Chrome. The browser is started
// on first use and reused; every render gets its own incognito context.
type ChromeRenderer struct {
	cfg     config.PDFConfig
	timeout time.Duration

	mu         sync.Mutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
	closed     bool
}

// NewChromeRenderer creates a renderer. Chrome is not started yet.
func NewChromeRenderer(cfg config.PDFConfig, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ChromeRenderer{cfg: cfg, timeout: timeout}
}

// Start connects to an existing Chrome or launches a new one.
func (r *ChromeRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx)
}

func (r *ChromeRenderer) startLocked(ctx context.Context) error {
	if r.closed {
		return ErrRendererClosed
	}
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		logging.Render("stale browser connection detected, reconnecting")
		_ = r.browser.Close()
		r.browser = nil
		r.controlURL = ""
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(r.cfg.Headless).Leakless(false)
		if r.cfg.ChromeBin != "" {
			l = l.Bin(r.cfg.ChromeBin)
		}
		for _, raw := range r.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		controlURL = url
	}

	// The browser outlives the request that started it.
	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		if r.launcher != nil {
			r.launcher.Kill()
			r.launcher = nil
		}
		return fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = browser
	r.controlURL = controlURL
	logging.Render("chrome connected at %s", controlURL)
	return nil
}

// ControlURL returns the DevTools WebSocket URL, empty before Start.
func (r *ChromeRenderer) ControlURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controlURL
}

// RenderPDF loads html into a fresh incognito page and prints it.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	r.mu.Lock()
	if err := r.startLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	browser := r.browser
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)
	defer page.Close()

	router := page.HijackRequests()
	if err := router.Add("*", "", blockRemote); err != nil {
		return nil, fmt.Errorf("hijack requests: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		logging.RenderError("print to pdf failed: %v", err)
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	logging.Render("rendered pdf (%d bytes) in %v", len(data), time.Since(start))
	return data, nil
}

// blockRemote fails every request the document makes except inline data.
// Rendered contracts are self-contained.
func blockRemote(h *rod.Hijack) {
	if localResource(h.Request.URL()) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}
	logging.RenderError("blocked resource request to %s", h.Request.URL().Redacted())
	h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

func localResource(u *url.URL) bool {
	if u == nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "data", "about":
		return true
	}
	return false
}

// Shutdown closes the browser and kills a launched Chrome process.
func (r *ChromeRenderer) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
	r.controlURL = ""
	return err
}
