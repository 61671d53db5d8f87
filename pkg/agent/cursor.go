package agent

import (
	"encoding/json"
	"strings"
)

// maxNotes bounds the findings carried in a cursor, in bytes.
const maxNotes = 4000

// Cursor is the resumable position of a browser agent. It is serialized
// into the opaque checkpoint cursor.
type Cursor struct {
	Step  int    `json:"step"`
	URL   string `json:"url,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Encode returns the cursor's checkpoint form.
func (c Cursor) Encode() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodeCursor parses a checkpoint cursor. Cursors that are not JSON are
// kept as notes so nothing is lost.
func DecodeCursor(s string) Cursor {
	var c Cursor
	if s == "" {
		return c
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Cursor{Notes: s}
	}
	return c
}

// addNote appends a finding, dropping the oldest text beyond maxNotes.
func (c *Cursor) addNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if c.Notes == "" {
		c.Notes = note
	} else {
		c.Notes += "\n" + note
	}
	if over := len(c.Notes) - maxNotes; over > 0 {
		cut := over
		for cut < len(c.Notes) && c.Notes[cut]&0xC0 == 0x80 {
			cut++
		}
		c.Notes = c.Notes[cut:]
	}
}
