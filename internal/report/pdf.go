package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrNoBrowser is returned when no Chromium binary can be found.
var ErrNoBrowser = errors.New("report: no chromium or chrome binary found")

// PageLayout is the printed page geometry. Lengths are inches.
type PageLayout struct {
	Width, Height           float64
	MarginTop, MarginBottom float64
	MarginLeft, MarginRight float64
	// Footer is printed on every page before the page counter; empty
	// prints the counter alone.
	Footer string
}

// A4 is the layout used unless WithLayout overrides it.
var A4 = PageLayout{
	Width: 8.27, Height: 11.69,
	MarginTop: 0.5, MarginBottom: 0.75,
	MarginLeft: 0.45, MarginRight: 0.45,
}

// PDFRenderer prints HTML documents with headless Chromium.
type PDFRenderer struct {
	chromePath string
	timeout    time.Duration
	layout     PageLayout
}

type PDFOption func(*PDFRenderer)

func WithLayout(l PageLayout) PDFOption {
	return func(r *PDFRenderer) {
		r.layout = l
	}
}

func WithRenderTimeout(d time.Duration) PDFOption {
	return func(r *PDFRenderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewPDFRenderer uses chromePath when set, otherwise the first browser
// found in the usual install locations.
func NewPDFRenderer(chromePath string, opts ...PDFOption) *PDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	r := &PDFRenderer{chromePath: chromePath, timeout: 30 * time.Second, layout: A4}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether a browser binary was found.
func (r *PDFRenderer) Available() bool {
	return r.chromePath != ""
}

// RenderMarkdown is HTML followed by Render.
func (r *PDFRenderer) RenderMarkdown(ctx context.Context, title, markdown string) ([]byte, error) {
	doc, err := HTML(title, markdown)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, doc)
}

func (r *PDFRenderer) Render(ctx context.Context, htmlDoc string) ([]byte, error) {
	if !r.Available() {
		return nil, ErrNoBrowser
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	browserCtx, closeBrowser := r.launch(ctx)
	defer closeBrowser()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString([]byte(htmlDoc))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = r.printParams().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

// launch starts a headless browser bound to ctx. The returned func stops it.
func (r *PDFRenderer) launch(ctx context.Context) (context.Context, func()) {
	allocCtx, stopAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.ExecPath(r.chromePath),
	)...)
	browserCtx, stopBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		stopBrowser()
		stopAlloc()
	}
}

func (r *PDFRenderer) printParams() *page.PrintToPDFParams {
	l := r.layout
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(footerTemplate(l.Footer)).
		WithPaperWidth(l.Width).
		WithPaperHeight(l.Height).
		WithMarginTop(l.MarginTop).
		WithMarginBottom(l.MarginBottom).
		WithMarginLeft(l.MarginLeft).
		WithMarginRight(l.MarginRight)
}

func footerTemplate(label string) string {
	var b strings.Builder
	b.WriteString(`<div style="width:100%;text-align:center;font-size:9px;color:#666;">`)
	if label != "" {
		b.WriteString(html.EscapeString(label))
		b.WriteString(` &middot; `)
	}
	b.WriteString(`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`)
	return b.String()
}

func detectChromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
