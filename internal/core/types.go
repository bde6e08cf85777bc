package core

import "time"

// UserRecord is the persisted request counter for one chat user.
type UserRecord struct {
	ID           int64  `json:"id"`
	RequestCount int    `json:"requests"`
	Note         string `json:"note,omitempty"`
}

// LedgerDocument is the durable snapshot of every user record.
type LedgerDocument struct {
	Users []UserRecord `json:"users"`
}

// Clone returns a deep copy of the document.
func (d *LedgerDocument) Clone() *LedgerDocument {
	if d == nil {
		return &LedgerDocument{Users: []UserRecord{}}
	}
	users := make([]UserRecord, len(d.Users))
	copy(users, d.Users)
	return &LedgerDocument{Users: users}
}

// UpstreamFailure describes a failed call to the completion endpoint.
type UpstreamFailure struct {
	At          time.Time
	UserID      int64
	Err         error
	RawResponse []byte
}

// RawResponder is implemented by errors that carry the upstream response body.
type RawResponder interface {
	RawBody() []byte
}
