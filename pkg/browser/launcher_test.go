package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileDirIsSanitizedAndUnique(t *testing.T) {
	l := NewLauncher(Options{ProfileRoot: "/profiles"}, nil)

	a := l.profileDir("shop/../evil")
	b := l.profileDir("shop/../evil")

	assert.NotEqual(t, a, b)
	assert.Equal(t, "/profiles", filepath.Dir(a))
	assert.True(t, strings.HasPrefix(filepath.Base(a), "shop_evil-"), "got %s", a)
	assert.True(t, strings.HasPrefix(filepath.Base(l.profileDir("")), "default-"))
}

func TestNewLauncherDefaults(t *testing.T) {
	l := NewLauncher(Options{}, nil)
	assert.Equal(t, DefaultViewportWidth, l.opts.Width)
	assert.Equal(t, DefaultViewportHeight, l.opts.Height)
	assert.Equal(t, 30*time.Second, l.opts.Timeout)
}

func TestCreateRequiresInitialize(t *testing.T) {
	l := NewLauncher(Options{ProfileRoot: t.TempDir()}, nil)
	_, _, err := l.Create(context.Background(), "default")
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestProbeRejectsForeignHandle(t *testing.T) {
	l := NewLauncher(Options{}, nil)
	assert.Error(t, l.Probe(context.Background(), "not a session"))
	assert.Error(t, l.Destroy(context.Background(), 42))
}

// TestLauncherRoundTrip drives a real Chromium. It needs the Playwright
// driver and browsers installed.
func TestLauncherRoundTrip(t *testing.T) {
	if os.Getenv("VIBESURF_TEST_PLAYWRIGHT") == "" {
		t.Skip("set VIBESURF_TEST_PLAYWRIGHT=1 to run against a real browser")
	}

	l := NewLauncher(Options{ProfileRoot: t.TempDir(), Headless: true}, nil)
	require.NoError(t, l.Initialize())
	defer l.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	h, ref, err := l.Create(ctx, "test")
	require.NoError(t, err)
	assert.DirExists(t, ref)

	require.NoError(t, l.Probe(ctx, h))

	s := h.(*Session)
	require.NoError(t, s.Navigate("data:text/html,<title>t</title><a id='x' href='#'>go</a>"))
	obs, err := s.Observe(0)
	require.NoError(t, err)
	assert.Equal(t, "t", obs.Title)

	require.NoError(t, l.Destroy(ctx, h))
	assert.NoDirExists(t, ref)
}
