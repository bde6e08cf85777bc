package ailink

import "encoding/json"

// RawResponseError wraps an error with the raw response payload.
//
// Returned when the provider answered successfully but the completion could
// not be used, so the diagnostic sink still sees what came back.
type RawResponseError struct {
	Err error
	Raw json.RawMessage
}

func (e *RawResponseError) Error() string {
	if e == nil || e.Err == nil {
		return "ailink error"
	}
	return e.Err.Error()
}

func (e *RawResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RawBody returns the captured payload.
func (e *RawResponseError) RawBody() []byte {
	if e == nil {
		return nil
	}
	return e.Raw
}
