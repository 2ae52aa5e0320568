package socket

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type roomKind string

const (
	roomConversation roomKind = "conv"
	roomUser         roomKind = "user"
)

// Room is a typed broadcast address: either a conversation room or a
// user's personal channel. It is constructed once and passed by value,
// never reassembled from interpolated strings at call sites.
type Room struct {
	kind roomKind
	id   uuid.UUID
}

func ConversationRoom(id uuid.UUID) Room {
	return Room{kind: roomConversation, id: id}
}

// UserRoom is the personal channel reaching every live connection of a
// user across the fleet.
func UserRoom(id uuid.UUID) Room {
	return Room{kind: roomUser, id: id}
}

func (r Room) IsZero() bool {
	return r.kind == ""
}

func (r Room) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.kind, r.id)
}

func (r Room) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Room) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = Room{}
		return nil
	}
	parsed, err := ParseRoom(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func ParseRoom(s string) (Room, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return Room{}, fmt.Errorf("malformed room %q", s)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Room{}, fmt.Errorf("malformed room id %q: %w", rawID, err)
	}
	switch roomKind(kind) {
	case roomConversation, roomUser:
		return Room{kind: roomKind(kind), id: id}, nil
	default:
		return Room{}, fmt.Errorf("unknown room kind %q", kind)
	}
}
