// Package domain holds shared identifier types. Distinct UUID wrappers keep
// a CaseID from ever being passed where a ParcelID belongs; the compiler
// enforces what code review would otherwise have to catch.
package domain

import (
	"github.com/google/uuid"

	dErrors "landregistry/pkg/domain-errors"
)

type (
	// CaseID identifies a land-administration case.
	CaseID uuid.UUID
	// ActorID identifies a user acting on cases (citizen or authority).
	ActorID uuid.UUID
	// ParcelID identifies a registered land parcel.
	ParcelID uuid.UUID
	// DeedID identifies an issued digital deed.
	DeedID uuid.UUID
)

func (id CaseID) String() string   { return uuid.UUID(id).String() }
func (id ActorID) String() string  { return uuid.UUID(id).String() }
func (id ParcelID) String() string { return uuid.UUID(id).String() }
func (id DeedID) String() string   { return uuid.UUID(id).String() }

func (id CaseID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ParcelID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DeedID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewCaseID allocates a fresh case identifier.
func NewCaseID() CaseID { return CaseID(uuid.New()) }

// NewActorID allocates a fresh actor identifier. Production actor ids come
// from the identity provider; this exists for fixtures and tests.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewParcelID allocates a fresh parcel identifier.
func NewParcelID() ParcelID { return ParcelID(uuid.New()) }

// NewDeedID allocates a fresh deed identifier.
func NewDeedID() DeedID { return DeedID(uuid.New()) }

// parseUUID enforces the shared invariant: ids must be valid, non-nil UUIDs.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseCaseID constructs a CaseID from external input.
func ParseCaseID(raw string) (CaseID, error) {
	parsed, err := parseUUID(raw, "case id")
	return CaseID(parsed), err
}

// ParseActorID constructs an ActorID from external input.
func ParseActorID(raw string) (ActorID, error) {
	parsed, err := parseUUID(raw, "actor id")
	return ActorID(parsed), err
}

// ParseParcelID constructs a ParcelID from external input.
func ParseParcelID(raw string) (ParcelID, error) {
	parsed, err := parseUUID(raw, "parcel id")
	return ParcelID(parsed), err
}

// ParseDeedID constructs a DeedID from external input.
func ParseDeedID(raw string) (DeedID, error) {
	parsed, err := parseUUID(raw, "deed id")
	return DeedID(parsed), err
}
