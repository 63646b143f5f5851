package generation

import "time"

// Document is a successfully generated complaint draft.
type Document struct {
	// Complaint holds the generated document text.
	Complaint string `json:"complaint"`
	// Model names the upstream model that produced the text.
	Model string `json:"model,omitempty"`
	// Cached reports whether the text was served from the draft cache.
	Cached bool `json:"cached,omitempty"`
	// CreatedAt records when the text was generated.
	CreatedAt time.Time `json:"createdAt"`
}
