package domain

import "github.com/google/uuid"

// Actor is the authenticated identity attached to a connection or request.
// Identity is owned by an external service; only the attributes carried in
// the verified token are available here.
type Actor struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
}

// Name returns the attribution used in system message text.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}
