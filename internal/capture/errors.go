package capture

import (
	"errors"

	"webshot/internal/browser"
	"webshot/internal/cdp"
	"webshot/internal/imaging"
)

var (
	// ErrInvalidURL rejects malformed or non-http(s) target URLs before any
	// subprocess is launched.
	ErrInvalidURL = errors.New("invalid target url")

	// ErrCaptureFailed covers a navigation or screenshot call that came back
	// non-success or with an undecodable payload.
	ErrCaptureFailed = errors.New("page capture failed")
)

// Kind maps a pipeline error to its stable identifier, the contract the HTTP
// layer builds statuses and response bodies from.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, browser.ErrBrowserNotFound):
		return "browser_not_found"
	case errors.Is(err, browser.ErrStartupTimeout):
		return "browser_startup_timeout"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, imaging.ErrEncodingFailed):
		return "encoding_failed"
	case errors.Is(err, cdp.ErrCallTimeout):
		return "protocol_timeout"
	case errors.Is(err, cdp.ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, ErrCaptureFailed):
		return "capture_failed"
	default:
		return "internal"
	}
}

// retryable reports whether a fresh launch-and-capture attempt could
// plausibly succeed. Configuration mistakes and a missing browser install
// never benefit from retrying.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, imaging.ErrUnsupportedFormat),
		errors.Is(err, browser.ErrBrowserNotFound):
		return false
	}
	return true
}
