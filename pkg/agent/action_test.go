package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Action
		wantErr string
	}{
		{
			name:  "plain",
			reply: `{"action":"navigate","url":"https://a.example"}`,
			want:  Action{Action: ActionNavigate, URL: "https://a.example"},
		},
		{
			name:  "fenced with prose",
			reply: "Sure.\n```json\n{\"action\":\"Click\",\"selector\":\"#go\"}\n```",
			want:  Action{Action: ActionClick, Selector: "#go"},
		},
		{
			name:  "extract without selector",
			reply: `{"action":"extract","note":"price list"}`,
			want:  Action{Action: ActionExtract, Note: "price list"},
		},
		{name: "no json", reply: "I will click the button", wantErr: "no JSON object"},
		{name: "broken json", reply: `{"action":`, wantErr: "no JSON object"},
		{name: "bad field type", reply: `{"action":1}`, wantErr: "decode action"},
		{name: "unknown", reply: `{"action":"scroll"}`, wantErr: `unknown action "scroll"`},
		{name: "missing action", reply: `{"url":"x"}`, wantErr: "missing action"},
		{name: "navigate without url", reply: `{"action":"navigate"}`, wantErr: "navigate requires url"},
		{name: "fill without selector", reply: `{"action":"fill","value":"x"}`, wantErr: "fill requires selector"},
		{name: "done without result", reply: `{"action":"done"}`, wantErr: "done requires result"},
		{name: "fail without reason", reply: `{"action":"fail"}`, wantErr: "fail requires reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.reply)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{Step: 7, URL: "https://a.example/x", Notes: "one\ntwo"}
	assert.Equal(t, c, DecodeCursor(c.Encode()))
	assert.Equal(t, Cursor{}, DecodeCursor(""))
	assert.Equal(t, Cursor{Notes: "legacy cursor"}, DecodeCursor("legacy cursor"))
}

func TestCursorNotesAreBounded(t *testing.T) {
	var c Cursor
	c.addNote("   ")
	assert.Empty(t, c.Notes)

	c.addNote("first")
	c.addNote("second")
	assert.Equal(t, "first\nsecond", c.Notes)

	c.addNote(strings.Repeat("é", maxNotes))
	assert.LessOrEqual(t, len(c.Notes), maxNotes)
	assert.True(t, strings.HasPrefix(c.Notes, "é"), "cut on a rune boundary")
	assert.NotContains(t, c.Notes, "first")
}
