package generation

import (
	"strings"
	"unicode/utf8"
)

// MaxSummaryChars bounds the case summary after trimming. Longer input is
// truncated silently rather than rejected.
const MaxSummaryChars = 5000

// CauseOfAction identifies a legal cause the caller selected on the intake
// form. Unknown identifiers are passed through to the prompt untouched so the
// form can grow without a server redeploy.
type CauseOfAction string

const (
	CauseNegligence        CauseOfAction = "negligence"
	CauseBreachOfContract  CauseOfAction = "breach_of_contract"
	CauseFraud             CauseOfAction = "fraud"
	CausePremisesLiability CauseOfAction = "premises_liability"
	CauseProductsLiability CauseOfAction = "products_liability"
	CauseEmotionalDistress CauseOfAction = "intentional_infliction_of_emotional_distress"
	CauseNuisance          CauseOfAction = "nuisance"
	CauseTrespass          CauseOfAction = "trespass"
)

var causeDisplayNames = map[CauseOfAction]string{
	CauseNegligence:        "Negligence",
	CauseBreachOfContract:  "Breach of Contract",
	CauseFraud:             "Fraud",
	CausePremisesLiability: "Premises Liability",
	CauseProductsLiability: "Products Liability",
	CauseEmotionalDistress: "Intentional Infliction of Emotional Distress",
	CauseNuisance:          "Nuisance",
	CauseTrespass:          "Trespass",
}

// DisplayName renders the cause for prompt and document text. Unknown causes
// fall back to a title-cased version of the raw identifier.
func (c CauseOfAction) DisplayName() string {
	if name, ok := causeDisplayNames[c]; ok {
		return name
	}
	words := strings.Split(strings.ReplaceAll(string(c), "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Party names one plaintiff or defendant in the caption.
type Party struct {
	Name string `json:"name"`
}

// Attorney carries the filing attorney header block fields.
type Attorney struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	BarNumber      string `json:"barNumber"`
	LawFirmName    string `json:"lawFirmName"`
	LawFirmAddress string `json:"lawFirmAddress"`
	LawFirmPhone   string `json:"lawFirmPhone"`
}

// Request is the case-intake payload accepted by POST /generate. It lives for
// one HTTP call; only the cache entry derived from it survives.
type Request struct {
	CaseSummary    string          `json:"caseSummary"`
	CausesOfAction []CauseOfAction `json:"causesOfAction,omitempty"`
	Attorneys      []Attorney      `json:"attorneys,omitempty"`
	County         string          `json:"county,omitempty"`
	Plaintiffs     []Party         `json:"plaintiffs,omitempty"`
	Defendants     []Party         `json:"defendants,omitempty"`
	CaseNumber     string          `json:"caseNumber,omitempty"`
}

// Normalize trims the summary and truncates it to MaxSummaryChars. Truncation
// is silent per the upstream-facing contract and counts characters, never
// splitting a multi-byte rune.
func (r *Request) Normalize() {
	summary := strings.TrimSpace(r.CaseSummary)
	if utf8.RuneCountInString(summary) > MaxSummaryChars {
		runes := []rune(summary)
		summary = string(runes[:MaxSummaryChars])
	}
	r.CaseSummary = summary
	r.County = strings.TrimSpace(r.County)
	r.CaseNumber = strings.TrimSpace(r.CaseNumber)
}

// Validate rejects requests whose summary is empty after normalization.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.CaseSummary) == "" {
		return NewError(KindInvalidInput, "case summary is required")
	}
	return nil
}
