package nlp

import "strings"

// Intent is the closed set of actions the classifier may choose.
type Intent string

const (
	IntentAddEvent    Intent = "ADD_EVENT"
	IntentDeleteEvent Intent = "DELETE_EVENT"
	IntentUpdateEvent Intent = "UPDATE_EVENT"
	IntentListEvents  Intent = "LIST_EVENTS"
	IntentSpend       Intent = "SPEND"
	IntentReport      Intent = "REPORT"
	IntentStock       Intent = "STOCK"
	IntentWeather     Intent = "WEATHER"
	IntentSearch      Intent = "SEARCH"
	IntentRemind      Intent = "REMIND"
	// IntentChat is the universal fallback.
	IntentChat Intent = "CHAT"
)

// Intents lists every valid intent in prompt order.
var Intents = []Intent{
	IntentAddEvent,
	IntentDeleteEvent,
	IntentUpdateEvent,
	IntentListEvents,
	IntentSpend,
	IntentReport,
	IntentStock,
	IntentWeather,
	IntentSearch,
	IntentRemind,
	IntentChat,
}

// ParseIntent maps a case-insensitive name onto an Intent. Surrounding
// whitespace is ignored and "-" or " " are accepted in place of "_".
func ParseIntent(s string) (Intent, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, in := range Intents {
		if string(in) == norm {
			return in, true
		}
	}
	return "", false
}

// Classification is the classifier's verdict for one message. Args is
// intent-specific free text and is never trusted to be well formed.
type Classification struct {
	Intent Intent
	Args   string
}

// Outcome records whether a classifier response was usable.
type Outcome int

const (
	// OutcomeRecovered means a JSON object with a known intent was found.
	OutcomeRecovered Outcome = iota
	// OutcomeMalformed means nothing usable was found and the result is the
	// CHAT fallback.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecovered:
		return "recovered"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is a Classification together with how it was obtained.
type Result struct {
	Classification
	Outcome Outcome
	// Raw is the unmodified provider output.
	Raw string
}
