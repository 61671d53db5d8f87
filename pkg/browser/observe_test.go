package browser

import (
	"strings"
	"testing"
)

func TestObserve(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		maxText      int
		wantTitle    string
		wantDesc     string
		wantText     []string
		wantNot      []string
		wantSelector []string
		truncated    bool
	}{
		{
			name: "strips script and style",
			input: `<html>
				<head>
					<title>Test Page</title>
					<meta name="description" content="Test description">
					<script>alert('evil');</script>
					<style>body { color: red; }</style>
				</head>
				<body>
					<h1 id="main-title">Hello World</h1>
					<p class="intro">This is a test.</p>
				</body>
			</html>`,
			maxText:   10000,
			wantTitle: "Test Page",
			wantDesc:  "Test description",
			wantText:  []string{"Hello World", "This is a test."},
			wantNot:   []string{"alert", "color: red", "Test Page"},
		},
		{
			name: "lists interactive elements",
			input: `<html><body>
				<form action="/login">
					<input type="text" name="username" placeholder="Enter name">
					<input type="hidden" name="csrf" value="secret">
					<input type="password" id="pw">
					<button type="submit" data-testid="go">Sign in</button>
				</form>
				<a href="/help">Help</a>
			</body></html>`,
			maxText:      10000,
			wantSelector: []string{`input[name="username"]`, "#pw", `[data-testid="go"]`, `a[href="/help"]`},
			wantNot:      []string{"secret"},
		},
		{
			name:      "truncates long text",
			input:     `<html><body><p>` + strings.Repeat("word ", 100) + `</p></body></html>`,
			maxText:   50,
			wantText:  []string{"word"},
			truncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := Observe(tt.input, tt.maxText)
			if err != nil {
				t.Fatalf("Observe() error = %v", err)
			}

			if obs.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", obs.Title, tt.wantTitle)
			}
			if obs.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", obs.Description, tt.wantDesc)
			}
			if obs.Truncated != tt.truncated {
				t.Errorf("Truncated = %v, want %v", obs.Truncated, tt.truncated)
			}
			if tt.maxText > 0 && len(obs.Text) > tt.maxText {
				t.Errorf("Text length %d exceeds max %d", len(obs.Text), tt.maxText)
			}

			rendered := obs.Render()
			for _, want := range tt.wantText {
				if !strings.Contains(obs.Text, want) {
					t.Errorf("Text missing %q:\n%s", want, obs.Text)
				}
			}
			for _, not := range tt.wantNot {
				if strings.Contains(obs.Text, not) {
					t.Errorf("Text should not contain %q:\n%s", not, obs.Text)
				}
			}
			for _, sel := range tt.wantSelector {
				if !strings.Contains(rendered, sel) {
					t.Errorf("rendered observation missing selector %q:\n%s", sel, rendered)
				}
			}
		})
	}
}

func TestObserveSkipsHiddenInputs(t *testing.T) {
	obs, err := Observe(`<input type="hidden" name="token"><input name="q">`, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs.Elements) != 1 || obs.Elements[0].Selector != `input[name="q"]` {
		t.Errorf("Elements = %+v, want only the visible input", obs.Elements)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "héllo"
	got := truncateUTF8(s, 2)
	if got != "h" {
		t.Errorf("truncateUTF8 = %q, want %q", got, "h")
	}
	if truncateUTF8(s, 10) != s {
		t.Error("short strings should be unchanged")
	}
}
