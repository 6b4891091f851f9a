package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const printCSS = `
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:-apple-system,"Segoe UI","PingFang SC","Noto Sans CJK SC",sans-serif;color:#1c1917;background:#fff;margin:0;padding:0.6rem;}
.report{max-width:1000px;margin:0 auto;}
.report h1{font-size:1.5rem;border-bottom:2px solid #0f766e;padding-bottom:0.3rem;}
.report h2{font-size:1.1rem;margin-top:1.4rem;}
.report h2[data-case-heading="true"]{break-after:avoid;page-break-after:avoid;}
.report table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;break-inside:avoid;}
.report th,.report td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.report thead th{background:#f1f5f9;font-weight:700;}
.report hr{border:0;border-top:1px solid #e7e5e4;margin:1.2rem 0;}
@media print{ @page{size:auto;margin:12mm;} body{padding:0;} .report{max-width:none;} }
`

var caseHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*([^<:]+:[^<]*)\s*</h2>`)

// HTML converts a markdown report into a standalone, print-ready document.
func HTML(title, markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	if strings.TrimSpace(title) == "" {
		title = "Test Cases"
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + printCSS + "</style></head><body>" +
		"<main class='report'>" + applyPrintLayoutHooks(content.String()) + "</main>" +
		"</body></html>", nil
}

// applyPrintLayoutHooks keeps each "ID: Title" heading on the same page as
// the table that follows it.
func applyPrintLayoutHooks(contentHTML string) string {
	return caseHeading.ReplaceAllString(contentHTML, `<h2$1 data-case-heading="true">$2</h2>`)
}
