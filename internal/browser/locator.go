package browser

import (
	"os"
	"os/exec"
	"runtime"
)

// Candidate names a supported browser together with the filesystem paths it
// is known to install under on the current platform.
type Candidate struct {
	Name  string
	Paths []string
}

// candidates returns the discovery priority list: Google Chrome, Brave,
// Chromium (package-manager install first, then system install), Chrome
// Canary. The order is fixed; callers cannot reprioritize.
func candidates() []Candidate {
	switch runtime.GOOS {
	case "darwin":
		return []Candidate{
			{Name: "Google Chrome", Paths: []string{
				"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			}},
			{Name: "Brave Browser", Paths: []string{
				"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
			}},
			{Name: "Chromium", Paths: []string{
				"/opt/homebrew/bin/chromium",
				"/usr/local/bin/chromium",
				"/Applications/Chromium.app/Contents/MacOS/Chromium",
			}},
			{Name: "Google Chrome Canary", Paths: []string{
				"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			}},
		}
	case "linux":
		return []Candidate{
			{Name: "Google Chrome", Paths: []string{
				"/usr/bin/google-chrome",
				"/usr/bin/google-chrome-stable",
			}},
			{Name: "Brave Browser", Paths: []string{
				"/usr/bin/brave",
				"/usr/bin/brave-browser",
			}},
			{Name: "Chromium", Paths: []string{
				"/snap/bin/chromium",
				"/usr/bin/chromium",
				"/usr/bin/chromium-browser",
			}},
			{Name: "Google Chrome Canary", Paths: []string{
				"/usr/bin/google-chrome-unstable",
			}},
		}
	default:
		return nil
	}
}

// pathFallbackNames are probed through $PATH when no well-known install path
// resolves.
var pathFallbackNames = []string{"google-chrome", "brave", "chromium", "chromium-browser"}

// Locator discovers a usable browser executable on the local machine.
type Locator struct {
	candidates []Candidate
	stat       func(string) (os.FileInfo, error)
	lookPath   func(string) (string, error)
}

// NewLocator returns a locator probing the platform's well-known install
// locations.
func NewLocator() *Locator {
	return &Locator{
		candidates: candidates(),
		stat:       os.Stat,
		lookPath:   exec.LookPath,
	}
}

// Locate returns the first candidate path that exists and is executable.
// The result is stable for a given machine, so callers may cache it.
func (l *Locator) Locate() (string, error) {
	for _, c := range l.candidates {
		for _, path := range c.Paths {
			if l.isExecutable(path) {
				return path, nil
			}
		}
	}
	for _, name := range pathFallbackNames {
		if path, err := l.lookPath(name); err == nil && path != "" {
			return path, nil
		}
	}
	return "", ErrBrowserNotFound
}

// Available reports whether any supported browser is installed. It never
// launches a subprocess.
func (l *Locator) Available() bool {
	_, err := l.Locate()
	return err == nil
}

func (l *Locator) isExecutable(path string) bool {
	info, err := l.stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
