package upstream

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/courtdraft/courtdraft/internal/generation"
)

const (
	quotaDocsURL  = "https://platform.openai.com/docs/guides/error-codes/api-errors"
	quotaErrorMsg = "OpenAI API quota exceeded. Please check your billing and usage limits at https://platform.openai.com/usage"

	quotaUserMessage = "Your OpenAI API usage has exceeded the current billing limits. To continue using this service, please:\n\n" +
		"1. Check your usage at https://platform.openai.com/usage\n" +
		"2. Add payment method or increase limits at https://platform.openai.com/account/billing\n" +
		"3. Wait for your quota to reset (if on free tier)\n\n" +
		"Alternatively, you can manually draft your complaint using the legal template format shown in previous examples."
)

// Rule is an operator-supplied classification override: a CEL predicate over
// {status, code, message} mapped to a failure kind. Rules run in order before
// the built-in table; the first match wins.
type Rule struct {
	When string
	Kind string
}

type compiledRule struct {
	program cel.Program
	kind    generation.Kind
}

// Classifier maps one upstream response (status plus decoded error payload)
// to the failure taxonomy. It is the single place upstream error semantics
// live, so an upstream API change is a one-place update.
type Classifier struct {
	rules []compiledRule
}

var retryableKinds = map[generation.Kind]bool{
	generation.KindRateLimitExceeded: true,
	generation.KindNetworkError:      true,
}

var validRuleKinds = map[string]generation.Kind{
	string(generation.KindInvalidCredential): generation.KindInvalidCredential,
	string(generation.KindQuotaExceeded):     generation.KindQuotaExceeded,
	string(generation.KindRateLimitExceeded): generation.KindRateLimitExceeded,
	string(generation.KindUpstreamError):     generation.KindUpstreamError,
}

// NewClassifier compiles the configured override rules. A nil or empty rule
// set yields the built-in table alone.
func NewClassifier(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return &Classifier{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("status", cel.IntType),
		cel.Variable("code", cel.StringType),
		cel.Variable("message", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("upstream: classifier environment: %w", err)
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		kind, ok := validRuleKinds[strings.TrimSpace(rule.Kind)]
		if !ok {
			return nil, fmt.Errorf("upstream: classification rule %d: unknown kind %q", i, rule.Kind)
		}
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("upstream: classification rule %d: %w", i, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("upstream: classification rule %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{program: program, kind: kind})
	}
	return &Classifier{rules: compiled}, nil
}

// Classify turns a non-2xx upstream response into a generation error. The
// returned retryable flag tells the attempt loop whether backing off and
// trying again could change the outcome.
func (c *Classifier) Classify(status int, body ErrorBody) (*generation.Error, bool) {
	if kind, ok := c.matchRule(status, body); ok {
		return c.buildError(kind, status, body), retryableKinds[kind]
	}

	switch {
	case status == 401:
		return c.buildError(generation.KindInvalidCredential, status, body), false
	case status == 429 && isQuotaExhausted(body):
		return c.buildError(generation.KindQuotaExceeded, status, body), false
	case status == 429:
		return c.buildError(generation.KindRateLimitExceeded, status, body), true
	default:
		return c.buildError(generation.KindUpstreamError, status, body), false
	}
}

func (c *Classifier) matchRule(status int, body ErrorBody) (generation.Kind, bool) {
	for _, rule := range c.rules {
		out, _, err := rule.program.Eval(map[string]any{
			"status":  status,
			"code":    body.Code,
			"message": body.Message,
		})
		if err != nil {
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return rule.kind, true
		}
	}
	return "", false
}

// isQuotaExhausted preserves the original substring heuristics: quota and
// billing failures never resolve by waiting, so they must not be retried.
func isQuotaExhausted(body ErrorBody) bool {
	message := strings.ToLower(body.Message)
	return strings.Contains(message, "quota") ||
		strings.Contains(message, "billing") ||
		body.Code == "insufficient_quota"
}

func (c *Classifier) buildError(kind generation.Kind, status int, body ErrorBody) *generation.Error {
	genErr := &generation.Error{Kind: kind, Status: status}
	switch kind {
	case generation.KindInvalidCredential:
		genErr.Message = "Invalid API key. Please check your OpenAI API key."
	case generation.KindQuotaExceeded:
		genErr.Message = quotaErrorMsg
		genErr.UserMessage = quotaUserMessage
		genErr.Details = map[string]any{
			"message": body.Message,
			"code":    body.Code,
			"docsUrl": quotaDocsURL,
		}
	case generation.KindRateLimitExceeded:
		genErr.Message = "Rate limit exceeded. This happens when too many requests are made to OpenAI. " +
			"Please wait 60 seconds before trying again. Consider upgrading your OpenAI API plan for higher limits."
		genErr.Details = errorBodyDetails(body)
	default:
		genErr.Message = body.Message
		if genErr.Message == "" {
			genErr.Message = "Failed to generate complaint"
		}
	}
	return genErr
}

func errorBodyDetails(body ErrorBody) map[string]any {
	if body == (ErrorBody{}) {
		return nil
	}
	details := map[string]any{}
	if body.Message != "" {
		details["message"] = body.Message
	}
	if body.Type != "" {
		details["type"] = body.Type
	}
	if body.Code != "" {
		details["code"] = body.Code
	}
	return details
}
