package nlp

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/catalogue.yaml
var defaultCatalogueYAML []byte

// IntentSpec describes one intent for the classifier prompt.
type IntentSpec struct {
	Name        Intent   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Examples    []string `yaml:"examples,omitempty"`
	// Rule is the per-intent extraction contract for the args field.
	Rule string `yaml:"rule,omitempty"`
}

// Extraction mode names used as keys of Catalogue.Extraction.
const (
	ModeEvent    = "event"
	ModeReminder = "reminder"
	ModePatch    = "patch"
)

// Catalogue holds every prompt the nlp package sends. It is loaded from
// YAML so prompts can be reviewed without reading Go code.
type Catalogue struct {
	Intents    []IntentSpec      `yaml:"intents"`
	Classifier string            `yaml:"classifier"`
	Extraction map[string]string `yaml:"extraction"`

	classifierPrompt string
	extraction       map[string]*template.Template
}

// extractionVars are the values interpolated into extraction templates.
type extractionVars struct {
	Text    string
	Ref     string
	Zone    string
	Current string
}

var templateFuncs = template.FuncMap{
	"quoteJoin": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = strconv.Quote(s)
		}
		return strings.Join(quoted, ", ")
	},
}

// DefaultCatalogue parses the embedded catalogue. The embedded file is part
// of the build, so a parse failure is a programming error.
func DefaultCatalogue() *Catalogue {
	c, err := ParseCatalogue(defaultCatalogueYAML)
	if err != nil {
		panic(fmt.Sprintf("nlp: embedded prompt catalogue: %v", err))
	}
	return c
}

// ParseCatalogue decodes, validates and pre-renders a catalogue.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("nlp: parse catalogue: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	tmpl, err := template.New("classifier").Funcs(templateFuncs).Option("missingkey=error").Parse(c.Classifier)
	if err != nil {
		return nil, fmt.Errorf("nlp: classifier template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, &c); err != nil {
		return nil, fmt.Errorf("nlp: render classifier template: %w", err)
	}
	c.classifierPrompt = strings.TrimSpace(buf.String())

	c.extraction = make(map[string]*template.Template, len(c.Extraction))
	for mode, text := range c.Extraction {
		t, err := template.New(mode).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("nlp: extraction template %q: %w", mode, err)
		}
		c.extraction[mode] = t
	}
	return &c, nil
}

func (c *Catalogue) validate() error {
	seen := make(map[Intent]bool, len(c.Intents))
	for i, spec := range c.Intents {
		in, ok := ParseIntent(string(spec.Name))
		if !ok {
			return fmt.Errorf("nlp: catalogue intent %q is not a known intent", spec.Name)
		}
		if seen[in] {
			return fmt.Errorf("nlp: catalogue intent %q listed twice", in)
		}
		seen[in] = true
		c.Intents[i].Name = in
	}
	if !seen[IntentChat] {
		return fmt.Errorf("nlp: catalogue must list %s", IntentChat)
	}
	if strings.TrimSpace(c.Classifier) == "" {
		return fmt.Errorf("nlp: catalogue has no classifier template")
	}
	for _, mode := range []string{ModeEvent, ModeReminder, ModePatch} {
		if strings.TrimSpace(c.Extraction[mode]) == "" {
			return fmt.Errorf("nlp: catalogue has no %q extraction template", mode)
		}
	}
	return nil
}

// ClassifierPrompt returns the fixed system prompt for intent
// classification.
func (c *Catalogue) ClassifierPrompt() string {
	return c.classifierPrompt
}

// ExtractionPrompt renders the prompt for mode. current describes the
// existing event and is only used by the patch mode.
func (c *Catalogue) ExtractionPrompt(mode, text string, ref time.Time, current string) (string, error) {
	t, ok := c.extraction[mode]
	if !ok {
		return "", fmt.Errorf("nlp: unknown extraction mode %q", mode)
	}
	vars := extractionVars{
		Text:    text,
		Ref:     ref.Format("2006-01-02 15:04") + " (" + ref.Weekday().String() + ")",
		Zone:    zoneName(ref.Location()),
		Current: current,
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("nlp: render %q prompt: %w", mode, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// zoneName prefers the IANA name and falls back to a UTC offset for fixed
// zones.
func zoneName(loc *time.Location) string {
	name := loc.String()
	if strings.Contains(name, "/") {
		return name
	}
	_, offset := time.Now().In(loc).Zone()
	return fmt.Sprintf("UTC%+d", offset/3600)
}
