package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies a record kept by the gateway.
type ID struct {
	value uuid.UUID
}

// NewID returns a random ID.
func NewID() ID {
	return ID{value: uuid.New()}
}

// ParseID parses the canonical UUID form.
func ParseID(s string) (ID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id format: %w", err)
	}
	return ID{value: parsed}, nil
}

func (id ID) String() string {
	return id.value.String()
}

// IsZero reports whether id was never set.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// MarshalText encodes the canonical form; JSON payloads use it too.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText accepts anything ParseID accepts.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
