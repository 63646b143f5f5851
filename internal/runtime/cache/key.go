package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/courtdraft/courtdraft/internal/generation"
)

const defaultNamespace = "courtdraft:draft:v1"

// KeyBuilder derives deterministic cache keys from generation requests.
//
// By default only the normalized (trimmed, lower-cased) case summary
// participates in the key: two requests with identical facts but different
// party names, county, or causes collide and the second caller receives the
// first caller's draft. That imprecision is historical, documented behavior;
// IncludeHeaderFields widens the key to the full request for operators who
// opt out of it.
type KeyBuilder struct {
	Namespace           string
	Salt                string
	IncludeHeaderFields bool
}

// Key returns the namespaced digest for the request.
func (b KeyBuilder) Key(req *generation.Request) string {
	namespace := strings.TrimSpace(b.Namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}

	raw := NormalizeSummary(req.CaseSummary)
	if b.IncludeHeaderFields {
		var sb strings.Builder
		sb.WriteString(raw)
		sb.WriteString("\x00county=")
		sb.WriteString(strings.ToLower(strings.TrimSpace(req.County)))
		sb.WriteString("\x00case=")
		sb.WriteString(strings.ToLower(strings.TrimSpace(req.CaseNumber)))
		for _, cause := range req.CausesOfAction {
			sb.WriteString("\x00cause=")
			sb.WriteString(strings.ToLower(string(cause)))
		}
		for _, p := range req.Plaintiffs {
			sb.WriteString("\x00plaintiff=")
			sb.WriteString(strings.ToLower(strings.TrimSpace(p.Name)))
		}
		for _, d := range req.Defendants {
			sb.WriteString("\x00defendant=")
			sb.WriteString(strings.ToLower(strings.TrimSpace(d.Name)))
		}
		raw = sb.String()
	}

	sum := sha256.Sum256(append([]byte(b.Salt), []byte(raw)...))
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	return fmt.Sprintf("%s:%s", namespace, encoded)
}

// NormalizeSummary applies the canonical key normalization: trim whitespace
// and lower-case. Applying it twice yields the same result.
func NormalizeSummary(summary string) string {
	return strings.ToLower(strings.TrimSpace(summary))
}
