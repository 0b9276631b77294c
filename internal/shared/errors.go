package shared

import "errors"

// Collaborator error taxonomy. Components never propagate these to the user;
// the conversation driver picks the documented fallback per call site.
var (
	// ErrUnavailable marks a transport failure or non-success status from an
	// external collaborator (LLM, embeddings, vector search).
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrMalformed marks a collaborator response that arrived but could not
	// be parsed into the expected structure.
	ErrMalformed = errors.New("malformed collaborator output")

	// ErrNotFound marks an exact-term lookup that returned no document.
	// Not a failure: the clarification sequencer uses it as its end-of-list
	// signal.
	ErrNotFound = errors.New("document not found")
)
