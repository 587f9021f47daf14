package tools

// Action is one of the closed set of actions the agent may request.
type Action int

// Supported actions. ActionUnsupported is the zero value and is what
// any unrecognized name maps to.
const (
	ActionUnsupported Action = iota
	ActionWebSearch
	ActionReferenceSearch
	ActionFetchPage
	ActionDesign
	ActionGenerate
	ActionAskFeedback
	ActionRegenerateBackground
	ActionUpdateText
	ActionSaveDesign
)

var actionNames = map[Action]string{
	ActionWebSearch:            "web_search",
	ActionReferenceSearch:      "reference_search",
	ActionFetchPage:            "fetch_page",
	ActionDesign:               "design",
	ActionGenerate:             "generate",
	ActionAskFeedback:          "ask_feedback",
	ActionRegenerateBackground: "regenerate_background",
	ActionUpdateText:           "update_text",
	ActionSaveDesign:           "save_design",
}

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, len(actionNames))
	for a, n := range actionNames {
		m[n] = a
	}
	return m
}()

// String returns the wire name of the action.
func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "unsupported"
}

// ParseActionName maps a name from model output to an Action. Matching
// is exact and case-sensitive.
func ParseActionName(name string) Action {
	if a, ok := actionsByName[name]; ok {
		return a
	}
	return ActionUnsupported
}

// Actions returns every supported action in declaration order.
func Actions() []Action {
	out := make([]Action, 0, len(actionNames))
	for a := ActionWebSearch; a <= ActionSaveDesign; a++ {
		out = append(out, a)
	}
	return out
}
