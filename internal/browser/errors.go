package browser

import "errors"

var (
	// ErrBrowserNotFound means no supported browser is installed. Not
	// retryable; the health probe surfaces it without launching anything.
	ErrBrowserNotFound = errors.New("no supported browser found; install Chrome, Brave, or Chromium")

	// ErrStartupTimeout means the browser process started but its debugging
	// endpoint never became reachable. The process is killed before this is
	// returned.
	ErrStartupTimeout = errors.New("browser devtools endpoint did not become reachable")
)
