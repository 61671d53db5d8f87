package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one isolated browser profile with a single active page. It is
// the session.Handle produced by Launcher.
type Session struct {
	// Profile is the family requested by the profile hint.
	Profile string

	// Dir is the persistent user-data directory isolating this session.
	Dir string

	// Context is the persistent browser context
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	CreatedAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	currentURL string
}

// Default values for page operations
const (
	DefaultTimeout        = 30000.0 // milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxText        = 12000
)

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) setURL() {
	url := s.Page.URL()
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
}

// LastUsedAt returns when the page was last driven.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// CurrentURL returns the URL after the last navigation or click.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Navigate navigates the session's page to url and waits for the DOM.
func (s *Session) Navigate(url string) error {
	s.touch()

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.setURL()
	return nil
}

// Click clicks the element matching selector.
func (s *Session) Click(selector string) error {
	s.touch()

	if err := s.Page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	s.setURL()
	return nil
}

// Fill fills an input element with value.
func (s *Session) Fill(selector, value string) error {
	s.touch()

	if err := s.Page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Press sends a key press, such as "Enter", to the element matching selector.
func (s *Session) Press(selector, key string) error {
	s.touch()

	if err := s.Page.Press(selector, key); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	s.setURL()
	return nil
}

// WaitFor waits until the element matching selector is visible.
func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	s.touch()

	state := playwright.WaitForSelectorStateVisible
	opts := playwright.PageWaitForSelectorOptions{State: state}
	if timeout > 0 {
		ms := float64(timeout.Milliseconds())
		opts.Timeout = &ms
	}
	if _, err := s.Page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Observe renders the current page for the agent, keeping at most maxText
// bytes of body text.
func (s *Session) Observe(maxText int) (*Observation, error) {
	s.touch()

	if maxText <= 0 {
		maxText = DefaultMaxText
	}
	content, err := s.Page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	obs, err := Observe(content, maxText)
	if err != nil {
		return nil, err
	}
	obs.URL = s.Page.URL()
	return obs, nil
}

// ExtractText returns the text content of the element matching selector,
// or of the whole body when selector is empty.
func (s *Session) ExtractText(selector string) (string, error) {
	s.touch()

	if selector == "" {
		selector = "body"
	}
	element, err := s.Page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}
	text, err := element.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}
