package driver

import "fmt"

// ProviderError is returned when a provider responds with a non-2xx status or
// a body that cannot be decoded.
//
// RawResponse holds the provider response body and must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// RawBody returns the provider response body.
func (e *ProviderError) RawBody() []byte {
	if e == nil {
		return nil
	}
	return e.RawResponse
}
