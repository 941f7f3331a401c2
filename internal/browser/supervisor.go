package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"webshot/internal/observability"
)

const (
	defaultStartupTimeout = 5 * time.Second
	defaultGracePeriod    = 3 * time.Second

	probeInitialBackoff = 50 * time.Millisecond
	probeMaxBackoff     = 500 * time.Millisecond
)

// Handle is one running browser subprocess. It is owned by a single capture
// request and must be released with Terminate on every exit path.
type Handle struct {
	ExecPath     string
	Port         int
	WebSocketURL string

	cmd         *exec.Cmd
	userDataDir string
	grace       time.Duration
	log         *observability.Logger

	termOnce sync.Once
	termErr  error
}

// Supervisor launches headless browser subprocesses and guarantees their
// teardown.
type Supervisor struct {
	log            *observability.Logger
	startupTimeout time.Duration
	gracePeriod    time.Duration
	client         *http.Client
}

// NewSupervisor returns a supervisor with default startup and shutdown
// bounds.
func NewSupervisor(log *observability.Logger) *Supervisor {
	return &Supervisor{
		log:            log,
		startupTimeout: defaultStartupTimeout,
		gracePeriod:    defaultGracePeriod,
		client:         &http.Client{Timeout: 2 * time.Second},
	}
}

// launchArgs is the flag set we start the browser with: headless rendering,
// a localhost-only debugging port, sandbox/GPU features disabled for server
// use, and an isolated profile directory.
func launchArgs(port int, userDataDir string) []string {
	return []string{
		"--headless=new",
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=" + userDataDir,
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--disable-accelerated-2d-canvas",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-timer-throttling",
		"--disable-renderer-backgrounding",
		"--disable-backgrounding-occluded-windows",
		"--disable-features=TranslateUI",
		"--disable-component-extensions-with-background-pages",
		"--disable-blink-features=AutomationControlled",
		"--hide-scrollbars",
		"--mute-audio",
		"about:blank",
	}
}

// Launch spawns execPath headless on an ephemeral debugging port and waits
// for the devtools endpoint to come up. On any failure the subprocess is
// killed and its profile directory removed before the error is returned.
func (s *Supervisor) Launch(ctx context.Context, execPath string) (*Handle, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("reserve debugging port: %w", err)
	}

	userDataDir := filepath.Join(os.TempDir(), "webshot-profile-"+uuid.NewString())
	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user data dir: %w", err)
	}

	cmd := exec.Command(execPath, launchArgs(port, userDataDir)...)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("start browser %s: %w", execPath, err)
	}

	h := &Handle{
		ExecPath:    execPath,
		Port:        port,
		cmd:         cmd,
		userDataDir: userDataDir,
		grace:       s.gracePeriod,
		log:         s.log,
	}

	wsURL, err := s.waitForDevTools(ctx, port)
	if err != nil {
		h.Terminate()
		return nil, err
	}
	h.WebSocketURL = wsURL

	s.log.Debug("browser launched", "path", execPath, "port", port, "pid", cmd.Process.Pid)
	return h, nil
}

// waitForDevTools polls the discovery endpoint with exponential backoff until
// it answers with a browser-level websocket URL or the startup bound elapses.
func (s *Supervisor) waitForDevTools(ctx context.Context, port int) (string, error) {
	deadline := time.Now().Add(s.startupTimeout)
	versionURL := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)

	backoff := probeInitialBackoff
	for {
		wsURL, err := s.probeVersion(ctx, versionURL)
		if err == nil {
			return wsURL, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s", ErrStartupTimeout, s.startupTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > probeMaxBackoff {
			backoff = probeMaxBackoff
		}
	}
}

type devtoolsVersion struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (s *Supervisor) probeVersion(ctx context.Context, versionURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("devtools version endpoint returned %s", resp.Status)
	}

	var info devtoolsVersion
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	wsURL := strings.TrimSpace(info.WebSocketDebuggerURL)
	if wsURL == "" {
		return "", fmt.Errorf("devtools version endpoint returned empty webSocketDebuggerUrl")
	}
	return wsURL, nil
}

// Terminate shuts the subprocess down, escalating from SIGTERM to SIGKILL
// after the grace period, and removes the profile directory. Safe to call
// more than once and on partially constructed handles.
func (h *Handle) Terminate() error {
	if h == nil {
		return nil
	}
	h.termOnce.Do(func() {
		h.termErr = h.terminate()
	})
	return h.termErr
}

func (h *Handle) terminate() error {
	defer func() {
		if h.userDataDir != "" {
			_ = os.RemoveAll(h.userDataDir)
		}
	}()

	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(h.grace):
	}

	if h.log != nil {
		h.log.Warn("browser did not exit in grace period, killing", "pid", h.cmd.Process.Pid)
	}
	if err := h.cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return fmt.Errorf("kill browser pid %d: %w", h.cmd.Process.Pid, err)
	}
	<-done
	return nil
}

// DebuggerURL returns the browser-level devtools websocket URL.
func (h *Handle) DebuggerURL() string {
	return h.WebSocketURL
}

// Alive reports whether the subprocess is still running.
func (h *Handle) Alive() bool {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return false
	}
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// freePort reserves an ephemeral localhost port by binding it briefly. The
// browser rebinds it right after; concurrent launches each reserve their own.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
