package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultDurationMinutes is used when the provider omits the duration or
// returns a non-positive one.
const DefaultDurationMinutes = 60

// snippetRunes is how much raw provider output an ExtractionError shows.
const snippetRunes = 50

// extractorMaxTokens bounds extraction completions.
const extractorMaxTokens = 300

// ExtractionError reports that the provider call failed or that its output
// did not contain a complete, valid structure.
type ExtractionError struct {
	// Raw is the unmodified provider output; empty when the call failed.
	Raw string
	// Err is the underlying cause.
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("nlp: extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Snippet returns the first 50 runes of the raw provider output.
func (e *ExtractionError) Snippet() string {
	r := []rune(e.Raw)
	if len(r) > snippetRunes {
		r = r[:snippetRunes]
	}
	return string(r)
}

// UserMessage is the reply shown when extraction fails. Provider failures
// get a generic message; unusable output echoes a snippet so the user can
// rephrase.
func (e *ExtractionError) UserMessage() string {
	if errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimit) {
		return ProviderFailureMessage
	}
	return "❌ AI 無法理解: " + e.Snippet()
}

// ExtractedEvent is a fully specified calendar event.
type ExtractedEvent struct {
	Summary         string
	Start           time.Time
	DurationMinutes int
}

// End is always derived from Start and DurationMinutes.
func (e ExtractedEvent) End() time.Time {
	return e.Start.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// ExtractedReminder is a reminder request.
type ExtractedReminder struct {
	Task     string
	RemindAt time.Time
}

// EventPatch holds the fields an update instruction changes. Zero values
// mean "unchanged".
type EventPatch struct {
	Summary         string
	Start           time.Time
	DurationMinutes int
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Summary == "" && p.Start.IsZero() && p.DurationMinutes <= 0
}

// Apply returns ev with the patch applied. A new start keeps the old
// duration unless the patch also sets one.
func (p EventPatch) Apply(ev ExtractedEvent) ExtractedEvent {
	if p.Summary != "" {
		ev.Summary = p.Summary
	}
	if !p.Start.IsZero() {
		ev.Start = p.Start
	}
	if p.DurationMinutes > 0 {
		ev.DurationMinutes = p.DurationMinutes
	}
	return ev
}

const eventSchema = `{
  "type": "object",
  "required": ["summary", "start_time"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "start_time": {"type": "string", "minLength": 1},
    "duration_minutes": {"type": ["number", "string", "null"]}
  }
}`

const reminderSchema = `{
  "type": "object",
  "required": ["task", "remind_time"],
  "properties": {
    "task": {"type": "string", "minLength": 1},
    "remind_time": {"type": "string", "minLength": 1}
  }
}`

const patchSchema = `{
  "type": "object",
  "minProperties": 1,
  "properties": {
    "summary": {"type": ["string", "null"]},
    "start_time": {"type": ["string", "null"]},
    "duration_minutes": {"type": ["number", "string", "null"]}
  }
}`

var (
	eventValidator    = jsonschema.MustCompileString("lumio://extract/event.json", eventSchema)
	reminderValidator = jsonschema.MustCompileString("lumio://extract/reminder.json", reminderSchema)
	patchValidator    = jsonschema.MustCompileString("lumio://extract/patch.json", patchSchema)
)

// Extractor turns free text plus a reference time into structured values.
type Extractor struct {
	provider Provider
	cat      *Catalogue
	loc      *time.Location
}

// NewExtractor returns an Extractor. Times without an explicit offset are
// interpreted in loc. A nil cat uses DefaultCatalogue.
func NewExtractor(provider Provider, cat *Catalogue, loc *time.Location) *Extractor {
	if cat == nil {
		cat = DefaultCatalogue()
	}
	if loc == nil {
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	return &Extractor{provider: provider, cat: cat, loc: loc}
}

// Location returns the zone used for offset-less times.
func (x *Extractor) Location() *time.Location { return x.loc }

type eventReply struct {
	Summary         string   `json:"summary"`
	StartTime       string   `json:"start_time"`
	DurationMinutes flexMins `json:"duration_minutes"`
}

type reminderReply struct {
	Task       string `json:"task"`
	RemindTime string `json:"remind_time"`
}

// Extract returns the event described by text relative to ref. It fails
// with *ExtractionError when the provider fails, when the output lacks
// summary or start_time, or when start_time is not a timestamp.
func (x *Extractor) Extract(ctx context.Context, text string, ref time.Time) (ExtractedEvent, error) {
	var reply eventReply
	raw, err := x.run(ctx, ModeEvent, text, ref, "", eventValidator, &reply)
	if err != nil {
		return ExtractedEvent{}, err
	}
	summary := strings.TrimSpace(reply.Summary)
	if summary == "" {
		return ExtractedEvent{}, &ExtractionError{Raw: raw, Err: errors.New("summary is blank")}
	}
	start, err := ParseTimestamp(reply.StartTime, x.loc)
	if err != nil {
		return ExtractedEvent{}, &ExtractionError{Raw: raw, Err: err}
	}
	return ExtractedEvent{
		Summary:         summary,
		Start:           start,
		DurationMinutes: reply.DurationMinutes.orDefault(),
	}, nil
}

// ExtractReminder returns the reminder described by text relative to ref.
func (x *Extractor) ExtractReminder(ctx context.Context, text string, ref time.Time) (ExtractedReminder, error) {
	var reply reminderReply
	raw, err := x.run(ctx, ModeReminder, text, ref, "", reminderValidator, &reply)
	if err != nil {
		return ExtractedReminder{}, err
	}
	at, err := ParseTimestamp(reply.RemindTime, x.loc)
	if err != nil {
		return ExtractedReminder{}, &ExtractionError{Raw: raw, Err: err}
	}
	return ExtractedReminder{Task: strings.TrimSpace(reply.Task), RemindAt: at}, nil
}

// ExtractPatch returns the change that instruction asks for on current.
// A patch that changes nothing is an extraction failure.
func (x *Extractor) ExtractPatch(ctx context.Context, instruction string, current ExtractedEvent, ref time.Time) (EventPatch, error) {
	desc := fmt.Sprintf("%s, %s, %d minutes",
		current.Summary, current.Start.In(x.loc).Format("2006-01-02T15:04"), current.DurationMinutes)

	var reply struct {
		Summary         *string  `json:"summary"`
		StartTime       *string  `json:"start_time"`
		DurationMinutes flexMins `json:"duration_minutes"`
	}
	raw, err := x.run(ctx, ModePatch, instruction, ref, desc, patchValidator, &reply)
	if err != nil {
		return EventPatch{}, err
	}

	var patch EventPatch
	if reply.Summary != nil {
		patch.Summary = strings.TrimSpace(*reply.Summary)
	}
	if reply.StartTime != nil && strings.TrimSpace(*reply.StartTime) != "" {
		start, err := ParseTimestamp(*reply.StartTime, x.loc)
		if err != nil {
			return EventPatch{}, &ExtractionError{Raw: raw, Err: err}
		}
		patch.Start = start
	}
	if reply.DurationMinutes > 0 {
		patch.DurationMinutes = int(reply.DurationMinutes)
	}
	if patch.Empty() {
		return EventPatch{}, &ExtractionError{Raw: raw, Err: errors.New("patch changes nothing")}
	}
	return patch, nil
}

// run performs the shared call → strip fences → brace-scan → schema
// validation → decode pipeline and returns the raw output.
func (x *Extractor) run(ctx context.Context, mode, text string, ref time.Time, current string, schema *jsonschema.Schema, out any) (string, error) {
	prompt, err := x.cat.ExtractionPrompt(mode, text, ref.In(x.loc), current)
	if err != nil {
		return "", &ExtractionError{Err: err}
	}
	raw, err := x.provider.Complete(ctx, CompletionRequest{
		User:      prompt,
		MaxTokens: extractorMaxTokens,
	})
	if err != nil {
		return "", &ExtractionError{Err: err}
	}

	candidate, ok := ScanObject(StripFences(raw))
	if !ok {
		return raw, &ExtractionError{Raw: raw, Err: ErrNoJSONObject}
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return raw, &ExtractionError{Raw: raw, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := schema.Validate(doc); err != nil {
		return raw, &ExtractionError{Raw: raw, Err: fmt.Errorf("validate: %w", err)}
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return raw, &ExtractionError{Raw: raw, Err: fmt.Errorf("decode: %w", err)}
	}
	return raw, nil
}

// zonedLayouts are accepted after RFC 3339 for timestamps that carry an
// offset without seconds or with a compact offset.
var zonedLayouts = []string{
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// localLayouts are accepted for timestamps without zone information.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. An explicit offset is
// honoured; otherwise the time is taken as civil time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start time %q is not an ISO-8601 timestamp", s)
}

// flexMins decodes a duration given as a JSON number, a numeric string, or
// null. Anything unparsable decodes to zero and so to the default.
type flexMins int

func (m *flexMins) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*m = 0
		return nil
	}
	*m = flexMins(f)
	return nil
}

func (m flexMins) orDefault() int {
	if m <= 0 {
		return DefaultDurationMinutes
	}
	return int(m)
}
