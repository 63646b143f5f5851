package upstream

import (
	"strings"
	"testing"

	"github.com/courtdraft/courtdraft/internal/generation"
)

func TestClassifyInvalidCredential(t *testing.T) {
	classifier := &Classifier{}

	genErr, retryable := classifier.Classify(401, ErrorBody{Message: "Incorrect API key provided"})
	if genErr.Kind != generation.KindInvalidCredential {
		t.Fatalf("expected invalid_credential, got %s", genErr.Kind)
	}
	if retryable {
		t.Fatalf("invalid credential must not be retryable")
	}
	if genErr.Message != "Invalid API key. Please check your OpenAI API key." {
		t.Fatalf("unexpected message: %q", genErr.Message)
	}
}

func TestClassifyQuotaExceeded(t *testing.T) {
	classifier := &Classifier{}

	cases := []ErrorBody{
		{Message: "You exceeded your current quota, please check your plan"},
		{Message: "Billing hard limit has been reached"},
		{Message: "QUOTA exhausted"},
		{Code: "insufficient_quota"},
	}
	for _, body := range cases {
		genErr, retryable := classifier.Classify(429, body)
		if genErr.Kind != generation.KindQuotaExceeded {
			t.Fatalf("body %+v: expected quota_exceeded, got %s", body, genErr.Kind)
		}
		if retryable {
			t.Fatalf("body %+v: quota exhaustion must not be retryable", body)
		}
		if genErr.UserMessage == "" || !strings.Contains(genErr.UserMessage, "platform.openai.com/usage") {
			t.Fatalf("body %+v: expected remediation user message, got %q", body, genErr.UserMessage)
		}
		if genErr.Details["docsUrl"] != quotaDocsURL {
			t.Fatalf("body %+v: expected docs url in details", body)
		}
	}
}

func TestClassifyRateLimit(t *testing.T) {
	classifier := &Classifier{}

	genErr, retryable := classifier.Classify(429, ErrorBody{Message: "Rate limit reached for requests", Type: "requests"})
	if genErr.Kind != generation.KindRateLimitExceeded {
		t.Fatalf("expected rate_limit_exceeded, got %s", genErr.Kind)
	}
	if !retryable {
		t.Fatalf("rate limiting without quota markers must be retryable")
	}
	if !strings.Contains(genErr.Message, "wait 60 seconds") {
		t.Fatalf("unexpected message: %q", genErr.Message)
	}
}

func TestClassifyUpstreamFallback(t *testing.T) {
	classifier := &Classifier{}

	genErr, retryable := classifier.Classify(503, ErrorBody{Message: "The server is overloaded"})
	if genErr.Kind != generation.KindUpstreamError {
		t.Fatalf("expected upstream_error, got %s", genErr.Kind)
	}
	if retryable {
		t.Fatalf("unclassified upstream failures are terminal")
	}
	if genErr.Status != 503 {
		t.Fatalf("expected upstream status recorded, got %d", genErr.Status)
	}
	if genErr.Message != "The server is overloaded" {
		t.Fatalf("expected upstream message passthrough, got %q", genErr.Message)
	}

	genErr, _ = classifier.Classify(500, ErrorBody{})
	if genErr.Message != "Failed to generate complaint" {
		t.Fatalf("expected fallback message for empty body, got %q", genErr.Message)
	}
}

func TestClassifyRulePrecedence(t *testing.T) {
	classifier, err := NewClassifier([]Rule{
		{When: `status == 429 && code == "tokens_exhausted"`, Kind: string(generation.KindQuotaExceeded)},
		{When: `message.contains("maintenance")`, Kind: string(generation.KindRateLimitExceeded)},
	})
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	genErr, retryable := classifier.Classify(429, ErrorBody{Code: "tokens_exhausted", Message: "out of tokens"})
	if genErr.Kind != generation.KindQuotaExceeded {
		t.Fatalf("expected rule to promote to quota_exceeded, got %s", genErr.Kind)
	}
	if retryable {
		t.Fatalf("rule-promoted quota failures must not be retryable")
	}

	genErr, retryable = classifier.Classify(503, ErrorBody{Message: "down for maintenance"})
	if genErr.Kind != generation.KindRateLimitExceeded {
		t.Fatalf("expected rule to mark maintenance retryable, got %s", genErr.Kind)
	}
	if !retryable {
		t.Fatalf("rate-limit kinds are retryable regardless of origin")
	}

	// Unmatched responses fall through to the built-in table.
	genErr, _ = classifier.Classify(401, ErrorBody{})
	if genErr.Kind != generation.KindInvalidCredential {
		t.Fatalf("expected builtin table fallthrough, got %s", genErr.Kind)
	}
}

func TestNewClassifierRejectsBadRules(t *testing.T) {
	if _, err := NewClassifier([]Rule{{When: "status ==", Kind: string(generation.KindUpstreamError)}}); err == nil {
		t.Fatalf("expected compile error for malformed predicate")
	}
	if _, err := NewClassifier([]Rule{{When: "status == 418", Kind: "teapot"}}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := NewClassifier([]Rule{{When: "status == 400", Kind: string(generation.KindInvalidInput)}}); err == nil {
		t.Fatalf("expected error for non-upstream kind")
	}
}
