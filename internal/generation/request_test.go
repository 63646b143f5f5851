package generation

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeTrimsAndTruncates(t *testing.T) {
	req := &Request{
		CaseSummary: "  " + strings.Repeat("a", MaxSummaryChars+50) + "  ",
		County:      " Los Angeles ",
		CaseNumber:  " 23STCV01234 ",
	}
	req.Normalize()

	if len(req.CaseSummary) != MaxSummaryChars {
		t.Fatalf("expected summary truncated to %d, got %d", MaxSummaryChars, len(req.CaseSummary))
	}
	if req.County != "Los Angeles" || req.CaseNumber != "23STCV01234" {
		t.Fatalf("expected trimmed header fields, got %q / %q", req.County, req.CaseNumber)
	}
}

func TestNormalizeTruncatesOnRuneBoundary(t *testing.T) {
	req := &Request{CaseSummary: strings.Repeat("a", MaxSummaryChars-1) + "éé"}
	req.Normalize()

	if !utf8.ValidString(req.CaseSummary) {
		t.Fatalf("expected truncated summary to remain valid UTF-8")
	}
	if got := utf8.RuneCountInString(req.CaseSummary); got != MaxSummaryChars {
		t.Fatalf("expected %d characters, got %d", MaxSummaryChars, got)
	}
	if !strings.HasSuffix(req.CaseSummary, "é") {
		t.Fatalf("expected the first multi-byte character to survive truncation")
	}

	cjk := &Request{CaseSummary: strings.Repeat("訴", MaxSummaryChars+10)}
	cjk.Normalize()
	if got := utf8.RuneCountInString(cjk.CaseSummary); got != MaxSummaryChars {
		t.Fatalf("expected CJK summary cut to %d characters, got %d", MaxSummaryChars, got)
	}

	short := &Request{CaseSummary: strings.Repeat("訴", 100)}
	short.Normalize()
	if got := utf8.RuneCountInString(short.CaseSummary); got != 100 {
		t.Fatalf("expected short multi-byte summary untouched, got %d characters", got)
	}
}

func TestValidateRequiresSummary(t *testing.T) {
	req := &Request{CaseSummary: "   "}
	req.Normalize()
	err := req.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindInvalidInput {
		t.Fatalf("expected invalid_input error, got %v", err)
	}

	ok := &Request{CaseSummary: "slip and fall"}
	ok.Normalize()
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCauseDisplayName(t *testing.T) {
	tests := []struct {
		cause CauseOfAction
		want  string
	}{
		{CauseNegligence, "Negligence"},
		{CauseEmotionalDistress, "Intentional Infliction of Emotional Distress"},
		{CauseOfAction("wrongful_eviction"), "Wrongful Eviction"},
	}
	for _, tc := range tests {
		if got := tc.cause.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", tc.cause, got, tc.want)
		}
	}
}

func TestAsErrorSynthesizesUpstream(t *testing.T) {
	genErr := AsError(errors.New("boom"))
	if genErr.Kind != KindUpstreamError || genErr.Message != "boom" {
		t.Fatalf("unexpected synthesized error: %+v", genErr)
	}

	wrapped := NewError(KindQuotaExceeded, "quota")
	if AsError(wrapped) != wrapped {
		t.Fatalf("expected unwrap to return the original error")
	}
}
