package utils

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// UUIDSet is a Postgres jsonb column holding a notification's recipient
// set. An empty (non-nil, zero-length) set means broadcast: every
// principal is a recipient.
type UUIDSet []uuid.UUID

func (s UUIDSet) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(UUIDSet{})
	}
	return json.Marshal(s)
}

func (s *UUIDSet) Scan(value any) error {
	if value == nil {
		*s = UUIDSet{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("UUIDSet: Scan failed, expected []byte but got %T", value)
	}

	return json.Unmarshal(b, s)
}

// Contains reports whether id is a member of the set.
func (s UUIDSet) Contains(id uuid.UUID) bool {
	for _, member := range s {
		if member == id {
			return true
		}
	}
	return false
}

// Broadcast reports whether the set addresses every principal.
func (s UUIDSet) Broadcast() bool {
	return len(s) == 0
}
