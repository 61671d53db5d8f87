package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionKind names one browser step the model may request.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionExtract  ActionKind = "extract"
	ActionDone     ActionKind = "done"
	ActionFail     ActionKind = "fail"
)

// Action is the JSON object the model replies with.
type Action struct {
	Action   ActionKind `json:"action"`
	URL      string     `json:"url,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Value    string     `json:"value,omitempty"`
	// Note is carried into the cursor so a resumed run keeps its findings.
	Note   string `json:"note,omitempty"`
	Result string `json:"result,omitempty"`
	Reason string `json:"reason,omitempty"`
}

var errNoJSON = errors.New("reply contains no JSON object")

// ParseAction extracts the first JSON object from a model reply and
// validates it. Text around the object, such as reasoning or code fences,
// is ignored.
func ParseAction(reply string) (Action, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Action{}, errNoJSON
	}

	var act Action
	dec := json.NewDecoder(strings.NewReader(reply[start : end+1]))
	if err := dec.Decode(&act); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	act.Action = ActionKind(strings.ToLower(strings.TrimSpace(string(act.Action))))
	return act, act.Validate()
}

// Validate checks that the fields the action needs are present.
func (a Action) Validate() error {
	switch a.Action {
	case ActionNavigate:
		if a.URL == "" {
			return errors.New("navigate requires url")
		}
	case ActionClick:
		if a.Selector == "" {
			return errors.New("click requires selector")
		}
	case ActionExtract:
	case ActionFill:
		if a.Selector == "" {
			return errors.New("fill requires selector")
		}
	case ActionDone:
		if a.Result == "" {
			return errors.New("done requires result")
		}
	case ActionFail:
		if a.Reason == "" {
			return errors.New("fail requires reason")
		}
	case "":
		return errors.New("missing action")
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}

// Summary is a one-line description used as the progress message.
func (a Action) Summary() string {
	switch a.Action {
	case ActionNavigate:
		return "navigate " + a.URL
	case ActionClick:
		return "click " + a.Selector
	case ActionFill:
		return "fill " + a.Selector
	case ActionExtract:
		if a.Selector == "" {
			return "extract page"
		}
		return "extract " + a.Selector
	default:
		return string(a.Action)
	}
}
