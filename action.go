// Package textact implements the text-action service: a user-selected piece
// of text goes in, one of a few AI actions (summarize, explain, rephrase,
// translate) is rendered into a prompt and dispatched to a generation
// provider, and the completion comes back. Results are memoized in a bounded
// prompt cache so identical requests never hit the remote API twice.
package textact

import (
	"fmt"
	"strings"
)

// Action identifies one of the supported text actions.
type Action string

// Supported actions.
const (
	ActionSummarize Action = "summarize"
	ActionExplain   Action = "explain"
	ActionRephrase  Action = "rephrase"
	ActionTranslate Action = "translate"
)

// Actions lists all supported actions in display order.
func Actions() []Action {
	return []Action{ActionSummarize, ActionExplain, ActionRephrase, ActionTranslate}
}

// ParseAction validates a string action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionSummarize, ActionExplain, ActionRephrase, ActionTranslate:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// DefaultTargetLanguage is used for translate requests that omit one.
const DefaultTargetLanguage = "English"

// renderPrompt substitutes the placeholders the templates understand.
// {{text}} is the selected text; {{targetLanguage}} the translation target.
func renderPrompt(template, text, targetLanguage string) string {
	if targetLanguage == "" {
		targetLanguage = DefaultTargetLanguage
	}
	return strings.NewReplacer(
		"{{text}}", text,
		"{{targetLanguage}}", targetLanguage,
	).Replace(template)
}
