package export

import (
	"strings"
	"testing"

	"github.com/courtdraft/courtdraft/internal/generation"
	"github.com/courtdraft/courtdraft/internal/prompt"
)

func TestRenderCaption(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	doc, err := renderer.Render(&generation.Request{
		CaseSummary:    "tenant fell on broken stairs",
		CausesOfAction: []generation.CauseOfAction{generation.CauseNegligence, generation.CausePremisesLiability},
		County:         "Los Angeles",
		CaseNumber:     "23STCV01234",
		Plaintiffs:     []generation.Party{{Name: "Jane Roe"}},
		Defendants:     []generation.Party{{Name: "Acme Property LLC"}, {Name: "John Doe"}},
		Attorneys: []generation.Attorney{{
			Name:           "Alex Crane",
			Email:          "alex@cranelaw.test",
			BarNumber:      "123456",
			LawFirmName:    "Crane Law",
			LawFirmAddress: "1 Main St, Los Angeles, CA",
			LawFirmPhone:   "(555) 555-0100",
		}},
	}, "1. Plaintiff alleges as follows...\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, fragment := range []string{
		"Alex Crane (SBN 123456)",
		"SUPERIOR COURT OF THE STATE OF CALIFORNIA",
		"COUNTY OF LOS ANGELES",
		"Case No.: 23STCV01234",
		"Jane Roe,",
		"Acme Property LLC, John Doe,",
		"Defendants.",
		"COMPLAINT FOR NEGLIGENCE; PREMISES LIABILITY",
		"DEMAND FOR JURY TRIAL",
		"1. Plaintiff alleges as follows...",
	} {
		if !strings.Contains(doc, fragment) {
			t.Fatalf("document missing %q:\n%s", fragment, doc)
		}
	}
}

func TestRenderPlaceholders(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	doc, err := renderer.Render(&generation.Request{CaseSummary: "facts"}, "body text")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, fragment := range []string{
		prompt.PlaceholderPlaintiff,
		prompt.PlaceholderDefendant,
		"COUNTY OF " + prompt.PlaceholderCounty,
		"Case No.: " + prompt.PlaceholderCaseNumber,
		"COMPLAINT FOR DAMAGES",
	} {
		if !strings.Contains(doc, fragment) {
			t.Fatalf("document missing %q:\n%s", fragment, doc)
		}
	}
}
