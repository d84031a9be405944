package softdelete

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// EntityType is the polymorphic discriminator stored with every tombstone.
type EntityType string

// KeyKind tells which primary-key representation a record type uses.
type KeyKind uint8

const (
	KeyInt KeyKind = iota + 1
	KeyUUID
)

func (k KeyKind) String() string {
	switch k {
	case KeyInt:
		return "int"
	case KeyUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// EntityRef identifies one record of one registered type. Exactly one of the
// integer or UUID slots is populated; the zero value refers to nothing.
type EntityRef struct {
	Type   EntityType
	kind   KeyKind
	intID  int64
	uuidID uuid.UUID
}

func IntRef(entityType EntityType, id int64) EntityRef {
	return EntityRef{Type: entityType, kind: KeyInt, intID: id}
}

func UUIDRef(entityType EntityType, id uuid.UUID) EntityRef {
	return EntityRef{Type: entityType, kind: KeyUUID, uuidID: id}
}

// ParseRef builds a reference from the textual key of a record whose type uses kind.
func ParseRef(entityType EntityType, kind KeyKind, raw string) (EntityRef, error) {
	trimmed := strings.TrimSpace(raw)
	switch kind {
	case KeyInt:
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil || id <= 0 {
			return EntityRef{}, fmt.Errorf("%w: %s key %q is not a positive integer", ErrInvalidKey, entityType, raw)
		}
		return IntRef(entityType, id), nil
	case KeyUUID:
		id, err := uuid.Parse(trimmed)
		if err != nil {
			return EntityRef{}, fmt.Errorf("%w: %s key %q is not a UUID", ErrInvalidKey, entityType, raw)
		}
		return UUIDRef(entityType, id), nil
	default:
		return EntityRef{}, fmt.Errorf("%w: %s has no key kind", ErrInvalidKey, entityType)
	}
}

func (r EntityRef) Kind() KeyKind { return r.kind }

func (r EntityRef) IntID() (int64, bool) {
	return r.intID, r.kind == KeyInt
}

func (r EntityRef) UUID() (uuid.UUID, bool) {
	return r.uuidID, r.kind == KeyUUID
}

func (r EntityRef) IsZero() bool {
	return r.Type == "" || r.kind == 0
}

// Key renders the key alone, as stored in snapshots and shown to clients.
func (r EntityRef) Key() string {
	switch r.kind {
	case KeyInt:
		return strconv.FormatInt(r.intID, 10)
	case KeyUUID:
		return r.uuidID.String()
	default:
		return ""
	}
}

func (r EntityRef) String() string {
	return string(r.Type) + ":" + r.Key()
}
