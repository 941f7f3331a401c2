// Package capture runs the screenshot pipeline: locate a browser, launch it,
// drive it over the devtools protocol, and transcode the result. One
// subprocess per request, torn down unconditionally.
package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"webshot/internal/browser"
	"webshot/internal/cdp"
	"webshot/internal/imaging"
	"webshot/internal/observability"
)

const (
	// DefaultWidth and DefaultHeight apply when a request omits dimensions.
	DefaultWidth  = 640
	DefaultHeight = 400

	defaultAttempts   = 3
	defaultRetryPause = 500 * time.Millisecond
)

// Request is the immutable input of one pipeline run. Tags double as the
// HTTP binding contract for query parameters and JSON bodies.
type Request struct {
	URL    string `json:"url" form:"url"`
	Width  int    `json:"width" form:"width"`
	Height int    `json:"height" form:"height"`
	Format string `json:"format" form:"format"`
}

// Result is the encoded artifact handed back to the transport layer.
type Result struct {
	Image       []byte
	ContentType string
	Width       int
	Height      int
	Title       string
	Description string
}

// conn is what the service needs from a protocol session.
type conn interface {
	session
	io.Closer
}

// browserProcess is what the service needs from a launched browser.
type browserProcess interface {
	DebuggerURL() string
	Terminate() error
}

// Options tunes the service. Zero values select production defaults.
type Options struct {
	// BrowserPath bypasses locator discovery when set.
	BrowserPath string
	// Timeout bounds one whole capture request.
	Timeout time.Duration
	// MaxConcurrent bounds simultaneous browser subprocesses.
	MaxConcurrent int
	// Attempts is the number of full launch-and-capture tries per request.
	Attempts int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	return o
}

// Service is the pipeline entry point exposed to the HTTP layer.
type Service struct {
	opts    Options
	log     *observability.Logger
	orch    *Orchestrator
	metrics *Metrics
	sem     *semaphore.Weighted

	locate    func() (string, error)
	launch    func(ctx context.Context, execPath string) (browserProcess, error)
	dial      func(ctx context.Context, wsURL string) (conn, error)
	retryWait time.Duration

	mu       sync.Mutex
	execPath string // cached locator result
}

// NewService wires the real locator, supervisor, and protocol client.
func NewService(opts Options, log *observability.Logger, metrics *Metrics) *Service {
	opts = opts.withDefaults()
	locator := browser.NewLocator()
	supervisor := browser.NewSupervisor(log.Component("supervisor"))
	cdpLog := log.Component("cdp")

	return &Service{
		opts:    opts,
		log:     log.Component("capture"),
		orch:    NewOrchestrator(log.Component("orchestrator")),
		metrics: metrics,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		locate: locator.Locate,
		launch: func(ctx context.Context, execPath string) (browserProcess, error) {
			handle, err := supervisor.Launch(ctx, execPath)
			if err != nil {
				return nil, err
			}
			return handle, nil
		},
		dial: func(ctx context.Context, wsURL string) (conn, error) {
			return cdp.Dial(ctx, wsURL, cdpLog)
		},
		retryWait: defaultRetryPause,
	}
}

// Capture runs one full pipeline cycle. Input validation happens before any
// subprocess or render slot is taken, so bad requests are cheap.
func (s *Service) Capture(ctx context.Context, req Request) (*Result, error) {
	format, err := imaging.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	start := time.Now()
	result, err := s.capture(ctx, req.URL, width, height, format)
	s.metrics.recordCapture(string(format), err, time.Since(start))
	if err != nil {
		s.log.ErrorContext(ctx, "capture failed", "url", req.URL, "kind", Kind(err), "error", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "capture complete",
		"url", req.URL, "size", fmt.Sprintf("%dx%d", width, height),
		"format", format, "bytes", len(result.Image), "elapsed", time.Since(start))
	return result, nil
}

func (s *Service) capture(ctx context.Context, target string, width, height int, format imaging.Format) (*Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	if s.metrics != nil {
		s.metrics.inFlight.Inc()
		defer s.metrics.inFlight.Dec()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var (
		page *Page
		err  error
	)
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		page, err = s.attempt(ctx, target, width, height)
		if err == nil {
			break
		}
		if !retryable(err) || ctx.Err() != nil || attempt == s.opts.Attempts {
			return nil, err
		}
		s.log.Warn("capture attempt failed, retrying",
			"url", target, "attempt", attempt, "error", err)
		select {
		case <-time.After(s.retryWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	encoded, err := imaging.Encode(page.Data, width, height, format)
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:       encoded.Data,
		ContentType: encoded.ContentType,
		Width:       encoded.Width,
		Height:      encoded.Height,
		Title:       page.Title,
		Description: page.Description,
	}, nil
}

// attempt is one launch-to-teardown cycle. The handle and connection are
// released on every path out, including cancellation.
func (s *Service) attempt(ctx context.Context, target string, width, height int) (*Page, error) {
	execPath, err := s.browserPath()
	if err != nil {
		return nil, err
	}

	s.metrics.recordLaunch()
	handle, err := s.launch(ctx, execPath)
	if err != nil {
		return nil, err
	}
	defer handle.Terminate()

	sess, err := s.dial(ctx, handle.DebuggerURL())
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return s.orch.Run(ctx, sess, target, width, height)
}

// browserPath resolves the executable once and caches the success; probing
// the filesystem again on every request buys nothing.
func (s *Service) browserPath() (string, error) {
	if s.opts.BrowserPath != "" {
		return s.opts.BrowserPath, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execPath != "" {
		return s.execPath, nil
	}
	path, err := s.locate()
	if err != nil {
		return "", err
	}
	s.execPath = path
	return path, nil
}

// Probe reports whether a browser executable is available. It runs only the
// locator; no subprocess is spawned.
func (s *Service) Probe() bool {
	_, err := s.browserPath()
	return err == nil
}
