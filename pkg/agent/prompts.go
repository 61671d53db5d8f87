package agent

import (
	"fmt"
	"strings"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/runner"
)

const systemPrompt = `You are a browser automation agent. You control one browser tab and work toward the task you are given, one action at a time.

After every action you receive the current page: its URL, title, the interactive elements with CSS selectors, and the visible text.

Reply with exactly one JSON object and nothing else. Available actions:

{"action":"navigate","url":"https://...","note":"why"}
{"action":"click","selector":"CSS selector from the element list","note":"why"}
{"action":"fill","selector":"CSS selector","value":"text to type","note":"why"}
{"action":"extract","selector":"optional CSS selector","note":"what you learned"}
{"action":"done","result":"the final answer for the task"}
{"action":"fail","reason":"why the task cannot be completed"}

Rules:
- Use only selectors that appear in the element list.
- Put anything worth remembering in "note"; notes survive restarts.
- Finish with "done" as soon as the task is answered.
- Use "fail" only when the task is impossible, not for a single failed action.`

func taskPrompt(req runner.Request, cur Cursor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Description)
	if req.Total > 1 {
		fmt.Fprintf(&b, "You are agent %d of %d working on this task in parallel.\n", req.Index+1, req.Total)
	}
	if req.Resumed {
		fmt.Fprintf(&b, "\nYou are resuming after %d steps.", cur.Step)
		if cur.URL != "" {
			fmt.Fprintf(&b, " The browser was restored to %s.", cur.URL)
		}
		b.WriteString("\n")
	}
	if cur.Notes != "" {
		fmt.Fprintf(&b, "\nYour notes so far:\n%s\n", cur.Notes)
	}
	return b.String()
}

func observationPrompt(step int, page string, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d.\n", step+1)
	if feedback != "" {
		fmt.Fprintf(&b, "Result of your last action: %s\n", feedback)
	}
	b.WriteString("\nCurrent page:\n")
	b.WriteString(page)
	b.WriteString("\n\nReply with the next action as a JSON object.")
	return b.String()
}
