package llm

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when Infer is called on a client that was
// not built by a constructor.
var ErrNotInitialized = errors.New("llm: client not initialized")

// ErrEmptyPrompt is returned when Infer is called with a blank prompt.
var ErrEmptyPrompt = errors.New("llm: prompt must not be empty")

// CredentialError reports that no API credential could be resolved at
// construction time. No partial client is returned alongside it.
type CredentialError struct {
	Provider string
	Err      error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: no API key resolved for provider %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("llm: no API key resolved for provider %s: provide an explicit key, a key file, or set the provider environment variable", e.Provider)
}

func (e *CredentialError) Unwrap() error { return e.Err }
