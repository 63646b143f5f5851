package export

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"

	"github.com/courtdraft/courtdraft/internal/generation"
	"github.com/courtdraft/courtdraft/internal/prompt"
)

const captionTemplate = `{{- range .Attorneys }}
{{ .Name }} (SBN {{ .BarNumber }})
{{ .LawFirmName }}
{{ .LawFirmAddress }}
Telephone: {{ .LawFirmPhone }}
Email: {{ .Email }}
Attorney for Plaintiffs
{{ end }}
SUPERIOR COURT OF THE STATE OF CALIFORNIA

COUNTY OF {{ upper .County }}

{{ join ", " .Plaintiffs }},

        Plaintiff{{ if gt (len .Plaintiffs) 1 }}s{{ end }},

    v.                                        Case No.: {{ .CaseNumber }}

{{ join ", " .Defendants }},

        Defendant{{ if gt (len .Defendants) 1 }}s{{ end }}.

{{ .Title }}

DEMAND FOR JURY TRIAL

{{ .Body }}
`

// Data is the caption template context: the shared prompt fallbacks plus the
// complaint body and computed title line.
type Data struct {
	prompt.Data
	Title string
	Body  string
}

// Renderer formats a generated complaint body into a plain-text court
// document with a standard California caption page.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer compiles the caption template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("caption").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(captionTemplate)
	if err != nil {
		return nil, fmt.Errorf("export: compile caption template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the full document for a normalized request and its
// generated complaint body. The same placeholder fallbacks used for prompt
// assembly apply to the caption, so absent intake fields surface as bracketed
// tokens rather than blanks.
func (r *Renderer) Render(req *generation.Request, body string) (string, error) {
	data := Data{
		Data:  prompt.BuildData(req),
		Title: titleLine(req.CausesOfAction),
		Body:  strings.TrimSpace(body),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("export: render document: %w", err)
	}
	return buf.String(), nil
}

func titleLine(causes []generation.CauseOfAction) string {
	if len(causes) == 0 {
		return "COMPLAINT FOR DAMAGES"
	}
	names := make([]string, 0, len(causes))
	for _, cause := range causes {
		names = append(names, strings.ToUpper(cause.DisplayName()))
	}
	return "COMPLAINT FOR " + strings.Join(names, "; ")
}
