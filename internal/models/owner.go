package models

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/apperrors"
)

// Kind of entity a wallet belongs to
type OwnerKind string

const (
	OwnerUser     OwnerKind = "User"
	OwnerAdmin    OwnerKind = "Admin"
	OwnerReseller OwnerKind = "Reseller"
)

func ParseOwnerKind(value string) (OwnerKind, error) {
	switch k := OwnerKind(value); k {
	case OwnerUser, OwnerAdmin, OwnerReseller:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrOwnerKindInvalid, value)
	}
}

// OwnerRef is the natural key of a wallet: at most one wallet exists per owner
type OwnerRef struct {
	ID   uuid.UUID
	Kind OwnerKind
}

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.ID)
}
