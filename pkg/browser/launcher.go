// Package browser implements the session capability on top of Playwright:
// each pooled session is a persistent Chromium context in its own profile
// directory.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
)

// ErrNotInitialized is returned when Create is called before Initialize.
var ErrNotInitialized = errors.New("playwright not initialized")

// Options configures a Launcher.
type Options struct {
	// ProfileRoot holds one user-data directory per session.
	ProfileRoot string
	Headless    bool
	// Install downloads the driver and Chromium before starting.
	Install bool
	Viewport
	// Timeout is the default page operation timeout.
	Timeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Launcher starts isolated Chromium profiles.
type Launcher struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	opts        Options
	initialized bool
	logger      *logging.Logger
}

var _ session.Capability = (*Launcher)(nil)

// NewLauncher creates a launcher. Initialize must be called before use.
func NewLauncher(opts Options, logger *logging.Logger) *Launcher {
	if opts.Width == 0 {
		opts.Width = DefaultViewportWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultViewportHeight
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Duration(DefaultTimeout) * time.Millisecond
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Launcher{opts: opts, logger: logger}
}

// Initialize installs (optionally) and starts the Playwright driver.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	// Driver output would corrupt the terminal watcher
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if l.opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	if err := os.MkdirAll(l.opts.ProfileRoot, 0750); err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to create profile root: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

var unsafeProfileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// profileDir returns a fresh directory name for one session of profile.
func (l *Launcher) profileDir(profile string) string {
	family := unsafeProfileChars.ReplaceAllString(profile, "_")
	if family == "" {
		family = session.DefaultProfile
	}
	return filepath.Join(l.opts.ProfileRoot, fmt.Sprintf("%s-%s", family, uuid.New().String()[:8]))
}

// Create launches a persistent context in a new profile directory. The
// directory path is the session's profile reference.
func (l *Launcher) Create(ctx context.Context, profile string) (session.Handle, string, error) {
	l.mu.Lock()
	pw := l.playwright
	ready := l.initialized
	l.mu.Unlock()
	if !ready {
		return nil, "", ErrNotInitialized
	}

	dir := l.profileDir(profile)
	type launched struct {
		s   *Session
		err error
	}
	done := make(chan launched, 1)

	go func() {
		s, err := l.launch(pw, profile, dir)
		done <- launched{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = os.RemoveAll(dir)
			return nil, "", r.err
		}
		l.logger.Debugf("launched browser profile %s", dir)
		return r.s, dir, nil
	case <-ctx.Done():
		// Finish the launch in the background and throw the result away
		go func() {
			r := <-done
			if r.err == nil {
				_ = l.close(r.s)
			} else {
				_ = os.RemoveAll(dir)
			}
		}()
		return nil, "", ctx.Err()
	}
}

func (l *Launcher) launch(pw *playwright.Playwright, profile, dir string) (*Session, error) {
	headless := l.opts.Headless
	bctx, err := pw.Chromium.LaunchPersistentContext(dir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: &headless,
		Viewport: &playwright.Size{
			Width:  l.opts.Width,
			Height: l.opts.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	page.SetDefaultTimeout(float64(l.opts.Timeout.Milliseconds()))

	now := time.Now()
	return &Session{
		Profile:    profile,
		Dir:        dir,
		Context:    bctx,
		Page:       page,
		CreatedAt:  now,
		lastUsedAt: now,
		currentURL: "about:blank",
	}, nil
}

// Probe evaluates a trivial script to check that the browser answers.
func (l *Launcher) Probe(ctx context.Context, h session.Handle) error {
	s, ok := h.(*Session)
	if !ok {
		return fmt.Errorf("unexpected handle type %T", h)
	}
	if s.Page.IsClosed() {
		return errors.New("page closed")
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Page.Evaluate("() => 1")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("probe failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("probe timed out: %w", ctx.Err())
	}
}

// Destroy closes the browser context and removes the profile directory.
func (l *Launcher) Destroy(ctx context.Context, h session.Handle) error {
	s, ok := h.(*Session)
	if !ok {
		return fmt.Errorf("unexpected handle type %T", h)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.close(s)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("destroy %s: %w", s.Dir, ctx.Err())
	}
}

func (l *Launcher) close(s *Session) error {
	var errs []error
	if err := s.Context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		errs = append(errs, fmt.Errorf("remove profile: %w", err))
	}
	return errors.Join(errs...)
}

// Shutdown stops the Playwright driver. Sessions must be destroyed first.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized && l.playwright != nil {
		if err := l.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		l.initialized = false
	}
	return nil
}
