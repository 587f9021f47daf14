package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Protocol keywords. Matching is case-sensitive.
const (
	keyThought     = "Thought:"
	keyAction      = "Action:"
	keyActionInput = "Action Input:"
	keyFinalAnswer = "Final Answer:"
)

var actionPattern = regexp.MustCompile(`Action:\s*(\w+)`)

// ParsedAction is the structured command recovered from one model
// response. When HasFinalAnswer is set, Action is empty.
type ParsedAction struct {
	Thought        string
	Action         string
	ActionInput    map[string]any
	FinalAnswer    string
	HasFinalAnswer bool
}

// ParseAction extracts the thought, action and action input, or the
// final answer, from raw model text. It never fails: missing pieces are
// left empty and an undecodable action input is kept under "raw".
func ParseAction(text string) ParsedAction {
	var p ParsedAction

	if i := strings.Index(text, keyThought); i >= 0 {
		rest := text[i+len(keyThought):]
		end := len(rest)
		for _, kw := range []string{keyAction, keyFinalAnswer} {
			if j := strings.Index(rest, kw); j >= 0 && j < end {
				end = j
			}
		}
		p.Thought = strings.TrimSpace(rest[:end])
	}

	// A final answer wins over anything that looks like an action. An
	// empty answer still stops parsing but is not treated as final.
	if i := strings.Index(text, keyFinalAnswer); i >= 0 {
		p.FinalAnswer = strings.TrimSpace(text[i+len(keyFinalAnswer):])
		p.HasFinalAnswer = p.FinalAnswer != ""
		return p
	}

	if m := actionPattern.FindStringSubmatch(text); m != nil {
		p.Action = m[1]
	}

	if i := strings.Index(text, keyActionInput); i >= 0 {
		if block := captureInput(text[i+len(keyActionInput):]); block != "" {
			p.ActionInput = decodeInput(block)
		}
	}
	return p
}

// captureInput returns the action input block from s, the text after
// "Action Input:". An object is captured with [captureObject]. Anything
// else, including a JSON array that opens before any '{', is the whole
// trimmed remainder and ends up under "raw".
func captureInput(s string) string {
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	if obj >= 0 && (arr < 0 || obj < arr) {
		block, _ := captureObject(s)
		return block
	}
	return strings.TrimSpace(s)
}

// captureObject returns the JSON object text starting at the first '{'
// in s, ending at its balancing '}'. Braces inside string literals are
// ignored. If the object never balances, the rest of s is returned.
func captureObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return strings.TrimRight(s[start:], " \t\r\n"), true
}

// decodeInput decodes an action input block: strict JSON first, then
// JSON with every newline removed, then the raw text under "raw".
func decodeInput(block string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(block), &m); err == nil && m != nil {
		return m
	}
	m = nil
	if err := json.Unmarshal([]byte(strings.ReplaceAll(block, "\n", "")), &m); err == nil && m != nil {
		return m
	}
	return map[string]any{"raw": block}
}
