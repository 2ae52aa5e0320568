package domain

import "time"

// Presence is the derived online state for one user: the online flag holds
// while at least one connection is live, lastSeen is stamped when the last
// connection drops.
type Presence struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
