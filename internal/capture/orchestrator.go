package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"webshot/internal/cdp"
	"webshot/internal/observability"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultLoadWait    = 10 * time.Second
	defaultSettleDelay = 1 * time.Second
	evalTimeout        = 5 * time.Second
)

// hideOverlaysJS suppresses cookie/consent banners that would otherwise
// dominate the capture. Best effort: evaluation failures are ignored.
const hideOverlaysJS = `
document.body.style.overflow = 'hidden';
['[class*="cookie"]', '[class*="consent"]', '[id*="cookie"]', '[class*="gdpr"]'].forEach(sel => {
	document.querySelectorAll(sel).forEach(el => el.style.display = 'none');
});`

const metaDescriptionJS = `
document.querySelector('meta[name="description"]')?.content ||
document.querySelector('meta[property="og:description"]')?.content || ''`

// session is the slice of the protocol client the orchestrator needs.
type session interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Subscribe(method string) <-chan cdp.Event
}

// Page is one raw capture plus the metadata pulled from the document.
type Page struct {
	Data        []byte // PNG bytes as captured
	Width       int
	Height      int
	Title       string
	Description string
}

// Orchestrator sequences the protocol calls for one capture: navigate, wait
// for the page to settle, size the viewport, screenshot.
type Orchestrator struct {
	log         *observability.Logger
	loadWait    time.Duration
	settleDelay time.Duration
}

// NewOrchestrator returns an orchestrator with production timing bounds.
func NewOrchestrator(log *observability.Logger) *Orchestrator {
	return &Orchestrator{
		log:         log,
		loadWait:    defaultLoadWait,
		settleDelay: defaultSettleDelay,
	}
}

// ValidateURL rejects anything that is not a well-formed http or https URL.
// Runs before any browser resource is committed.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

type navigateResult struct {
	FrameID   string `json:"frameId"`
	ErrorText string `json:"errorText"`
}

type screenshotResult struct {
	Data string `json:"data"`
}

// Run drives one capture on an established session. The load-event wait is
// best effort: pages with persistent background activity never fire a clean
// load, so on timeout we capture whatever has rendered.
func (o *Orchestrator) Run(ctx context.Context, sess session, target string, width, height int) (*Page, error) {
	if err := ValidateURL(target); err != nil {
		return nil, err
	}

	if _, err := sess.Call(ctx, "Page.enable", nil); err != nil {
		return nil, err
	}

	// Subscribe before navigating so a fast load cannot race past us.
	loaded := sess.Subscribe("Page.loadEventFired")

	_, _ = sess.Call(ctx, "Network.setUserAgentOverride", map[string]any{
		"userAgent":      desktopUserAgent,
		"acceptLanguage": "en-US,en;q=0.9",
		"platform":       "MacIntel",
	})

	if _, err := sess.Call(ctx, "Emulation.setDeviceMetricsOverride", map[string]any{
		"width":             width,
		"height":            height,
		"deviceScaleFactor": 1,
		"mobile":            false,
	}); err != nil {
		return nil, err
	}

	raw, err := sess.Call(ctx, "Page.navigate", map[string]any{"url": target})
	if err != nil {
		return nil, err
	}
	var nav navigateResult
	if err := json.Unmarshal(raw, &nav); err != nil {
		return nil, fmt.Errorf("%w: malformed navigate response: %v", ErrCaptureFailed, err)
	}
	if nav.ErrorText != "" {
		return nil, fmt.Errorf("%w: navigation: %s", ErrCaptureFailed, nav.ErrorText)
	}

	select {
	case <-loaded:
	case <-time.After(o.loadWait):
		o.log.Warn("load event not fired in time, capturing anyway", "url", target, "wait", o.loadWait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if o.settleDelay > 0 {
		select {
		case <-time.After(o.settleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	title := o.evaluateString(ctx, sess, "document.title")
	description := o.evaluateString(ctx, sess, metaDescriptionJS)

	_, _ = sess.Call(ctx, "Runtime.evaluate", map[string]any{"expression": hideOverlaysJS})

	raw, err = sess.Call(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, err
	}
	var shot screenshotResult
	if err := json.Unmarshal(raw, &shot); err != nil {
		return nil, fmt.Errorf("%w: malformed screenshot response: %v", ErrCaptureFailed, err)
	}
	data, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot payload: %v", ErrCaptureFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot", ErrCaptureFailed)
	}

	return &Page{
		Data:        data,
		Width:       width,
		Height:      height,
		Title:       title,
		Description: description,
	}, nil
}

type evaluateResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
}

// evaluateString runs a page expression expected to yield a string. Metadata
// extraction is never worth failing a capture over, so errors collapse to "".
func (o *Orchestrator) evaluateString(ctx context.Context, sess session, expression string) string {
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	raw, err := sess.Call(evalCtx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	})
	if err != nil {
		return ""
	}
	var eval evaluateResult
	if err := json.Unmarshal(raw, &eval); err != nil || eval.Result.Type != "string" {
		return ""
	}
	var value string
	if err := json.Unmarshal(eval.Result.Value, &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
