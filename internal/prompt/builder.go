package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"

	"github.com/courtdraft/courtdraft/internal/generation"
)

// SystemPrompt anchors every completion attempt. The wording is collaborator
// content; the orchestrator treats it as opaque.
const SystemPrompt = "You are an experienced legal assistant who drafts professional complaints under California law. " +
	"Always use proper legal formatting, clear language, and ensure all allegations are factually supported."

// Bracketed placeholder tokens substituted for absent intake fields.
const (
	PlaceholderPlaintiff  = "[PLAINTIFF NAME]"
	PlaceholderDefendant  = "[DEFENDANT NAME]"
	PlaceholderCounty     = "[COUNTY]"
	PlaceholderCaseNumber = "[CASE NUMBER]"
	PlaceholderAttorney   = "[ATTORNEY NAME]"
	PlaceholderBarNumber  = "[BAR NUMBER]"
	PlaceholderFirmName   = "[LAW FIRM NAME]"
	PlaceholderFirmAddr   = "[LAW FIRM ADDRESS]"
	PlaceholderFirmPhone  = "[PHONE NUMBER]"
	PlaceholderEmail      = "[EMAIL ADDRESS]"
)

const defaultTemplate = `Generate a California Superior Court complaint. Format: attorney info (lines 1-7), court header (lines 8-11), case caption (lines 13-22), then numbered allegations.

Attorney of record:
{{- range .Attorneys }}
{{ .Name }} (SBN {{ .BarNumber }})
{{ .LawFirmName }}
{{ .LawFirmAddress }}
Telephone: {{ .LawFirmPhone }}
Email: {{ .Email }}
{{- end }}

Superior Court of California, County of {{ .County }}
Case number: {{ .CaseNumber }}
Plaintiffs: {{ join ", " .Plaintiffs }}
Defendants: {{ join ", " .Defendants }}

{{ .CausesInstruction }}

Facts: {{ .CaseSummary }}

Include: damages, proper legal language, case number, parties, jury demand.`

// Data is the template context built from a normalized generation request.
// Every field is pre-filled, with placeholders substituted for absent input,
// so templates stay simple substitution with no conditional logic.
type Data struct {
	CaseSummary       string
	CausesInstruction string
	Attorneys         []generation.Attorney
	County            string
	CaseNumber        string
	Plaintiffs        []string
	Defendants        []string
}

// Builder assembles the user prompt from a compiled template. Safe for
// concurrent use; Reload swaps the compiled template atomically.
type Builder struct {
	sandbox      *Sandbox
	templateFile string

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewBuilder compiles the default prompt template or, when a template file is
// configured, the override resolved through the sandbox.
func NewBuilder(sandbox *Sandbox, templateFile string) (*Builder, error) {
	b := &Builder{sandbox: sandbox, templateFile: strings.TrimSpace(templateFile)}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload recompiles the template from its configured source. Used by the
// template watcher; on error the previously compiled template stays active.
func (b *Builder) Reload() error {
	source := defaultTemplate
	name := "default"
	if b.templateFile != "" {
		path := b.templateFile
		if b.sandbox != nil {
			resolved, err := b.sandbox.Resolve(b.templateFile)
			if err != nil {
				return err
			}
			path = resolved
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("prompt: read template %q: %w", b.templateFile, err)
		}
		source = string(contents)
		name = b.templateFile
	}

	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(source)
	if err != nil {
		return fmt.Errorf("prompt: compile template %q: %w", name, err)
	}

	b.mu.Lock()
	b.tmpl = tmpl
	b.mu.Unlock()
	return nil
}

// Build renders the user prompt for a normalized request.
func (b *Builder) Build(req *generation.Request) (string, error) {
	b.mu.RLock()
	tmpl := b.tmpl
	b.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, BuildData(req)); err != nil {
		return "", fmt.Errorf("prompt: execute template: %w", err)
	}
	return buf.String(), nil
}

// BuildData applies the field-level fallback rules and produces the template
// context. Exported so the export renderer shares identical fallbacks.
func BuildData(req *generation.Request) Data {
	data := Data{
		CaseSummary: req.CaseSummary,
		County:      fallback(req.County, PlaceholderCounty),
		CaseNumber:  fallback(req.CaseNumber, PlaceholderCaseNumber),
		Plaintiffs:  partyNames(req.Plaintiffs, PlaceholderPlaintiff),
		Defendants:  partyNames(req.Defendants, PlaceholderDefendant),
		Attorneys:   attorneyBlocks(req.Attorneys),
	}

	if len(req.CausesOfAction) == 0 {
		data.CausesInstruction = "Determine the appropriate causes of action from the facts."
	} else {
		names := make([]string, 0, len(req.CausesOfAction))
		for _, cause := range req.CausesOfAction {
			names = append(names, cause.DisplayName())
		}
		data.CausesInstruction = "Causes of action to plead: " + strings.Join(names, ", ") + "."
	}
	return data
}

func fallback(value, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return placeholder
	}
	return strings.TrimSpace(value)
}

func partyNames(parties []generation.Party, placeholder string) []string {
	names := make([]string, 0, len(parties))
	for _, p := range parties {
		if name := strings.TrimSpace(p.Name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return []string{placeholder}
	}
	return names
}

func attorneyBlocks(attorneys []generation.Attorney) []generation.Attorney {
	filled := make([]generation.Attorney, 0, len(attorneys))
	for _, a := range attorneys {
		filled = append(filled, generation.Attorney{
			Name:           fallback(a.Name, PlaceholderAttorney),
			Email:          fallback(a.Email, PlaceholderEmail),
			BarNumber:      fallback(a.BarNumber, PlaceholderBarNumber),
			LawFirmName:    fallback(a.LawFirmName, PlaceholderFirmName),
			LawFirmAddress: fallback(a.LawFirmAddress, PlaceholderFirmAddr),
			LawFirmPhone:   fallback(a.LawFirmPhone, PlaceholderFirmPhone),
		})
	}
	if len(filled) == 0 {
		filled = append(filled, generation.Attorney{
			Name:           PlaceholderAttorney,
			Email:          PlaceholderEmail,
			BarNumber:      PlaceholderBarNumber,
			LawFirmName:    PlaceholderFirmName,
			LawFirmAddress: PlaceholderFirmAddr,
			LawFirmPhone:   PlaceholderFirmPhone,
		})
	}
	return filled
}
