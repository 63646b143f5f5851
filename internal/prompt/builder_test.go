package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courtdraft/courtdraft/internal/generation"
)

func TestBuildDataPlaceholders(t *testing.T) {
	data := BuildData(&generation.Request{CaseSummary: "slip and fall"})

	if data.County != PlaceholderCounty {
		t.Fatalf("expected county placeholder, got %q", data.County)
	}
	if data.CaseNumber != PlaceholderCaseNumber {
		t.Fatalf("expected case number placeholder, got %q", data.CaseNumber)
	}
	if len(data.Plaintiffs) != 1 || data.Plaintiffs[0] != PlaceholderPlaintiff {
		t.Fatalf("expected plaintiff placeholder, got %v", data.Plaintiffs)
	}
	if len(data.Defendants) != 1 || data.Defendants[0] != PlaceholderDefendant {
		t.Fatalf("expected defendant placeholder, got %v", data.Defendants)
	}
	if len(data.Attorneys) != 1 || data.Attorneys[0].Name != PlaceholderAttorney {
		t.Fatalf("expected attorney placeholder block, got %v", data.Attorneys)
	}
	if data.Attorneys[0].BarNumber != PlaceholderBarNumber {
		t.Fatalf("expected bar number placeholder, got %q", data.Attorneys[0].BarNumber)
	}
}

func TestBuildDataPartialAttorney(t *testing.T) {
	data := BuildData(&generation.Request{
		CaseSummary: "slip and fall",
		Attorneys: []generation.Attorney{
			{Name: "Alex Crane", BarNumber: "123456"},
		},
	})

	if len(data.Attorneys) != 1 {
		t.Fatalf("expected one attorney block, got %d", len(data.Attorneys))
	}
	block := data.Attorneys[0]
	if block.Name != "Alex Crane" || block.BarNumber != "123456" {
		t.Fatalf("expected provided fields to survive, got %+v", block)
	}
	if block.LawFirmName != PlaceholderFirmName || block.Email != PlaceholderEmail {
		t.Fatalf("expected missing fields to fall back to placeholders, got %+v", block)
	}
}

func TestBuildDataCausesInstruction(t *testing.T) {
	open := BuildData(&generation.Request{CaseSummary: "facts"})
	if open.CausesInstruction != "Determine the appropriate causes of action from the facts." {
		t.Fatalf("unexpected open instruction: %q", open.CausesInstruction)
	}

	chosen := BuildData(&generation.Request{
		CaseSummary:    "facts",
		CausesOfAction: []generation.CauseOfAction{generation.CauseNegligence, generation.CauseFraud},
	})
	if chosen.CausesInstruction != "Causes of action to plead: Negligence, Fraud." {
		t.Fatalf("unexpected instruction: %q", chosen.CausesInstruction)
	}

	custom := BuildData(&generation.Request{
		CaseSummary:    "facts",
		CausesOfAction: []generation.CauseOfAction{"wrongful_eviction"},
	})
	if custom.CausesInstruction != "Causes of action to plead: Wrongful Eviction." {
		t.Fatalf("expected title-cased unknown cause, got %q", custom.CausesInstruction)
	}
}

func TestBuilderDefaultTemplate(t *testing.T) {
	builder, err := NewBuilder(nil, "")
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	rendered, err := builder.Build(&generation.Request{
		CaseSummary:    "tenant fell on broken stairs",
		CausesOfAction: []generation.CauseOfAction{generation.CausePremisesLiability},
		County:         "Los Angeles",
		Plaintiffs:     []generation.Party{{Name: "Jane Roe"}},
		Defendants:     []generation.Party{{Name: "Acme Property LLC"}},
		Attorneys: []generation.Attorney{{
			Name:           "Alex Crane",
			Email:          "alex@cranelaw.test",
			BarNumber:      "123456",
			LawFirmName:    "Crane Law",
			LawFirmAddress: "1 Main St, Los Angeles, CA",
			LawFirmPhone:   "(555) 555-0100",
		}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, fragment := range []string{
		"tenant fell on broken stairs",
		"County of Los Angeles",
		"Case number: " + PlaceholderCaseNumber,
		"Plaintiffs: Jane Roe",
		"Defendants: Acme Property LLC",
		"Alex Crane (SBN 123456)",
		"Causes of action to plead: Premises Liability.",
	} {
		if !strings.Contains(rendered, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, rendered)
		}
	}
}

func TestBuilderTemplateOverrideAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.tmpl")
	if err := os.WriteFile(path, []byte("FACTS: {{ .CaseSummary }}"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	builder, err := NewBuilder(sandbox, "prompt.tmpl")
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	rendered, err := builder.Build(&generation.Request{CaseSummary: "the facts"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rendered != "FACTS: the facts" {
		t.Fatalf("unexpected render: %q", rendered)
	}

	if err := os.WriteFile(path, []byte("SUMMARY={{ .CaseSummary }}"), 0o600); err != nil {
		t.Fatalf("rewrite template: %v", err)
	}
	if err := builder.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	rendered, err = builder.Build(&generation.Request{CaseSummary: "the facts"})
	if err != nil {
		t.Fatalf("build after reload: %v", err)
	}
	if rendered != "SUMMARY=the facts" {
		t.Fatalf("expected reloaded template, got %q", rendered)
	}
}

func TestSandboxRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	if _, err := sandbox.Resolve("../outside.tmpl"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
