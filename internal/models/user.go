package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser     = "user"
	RoleReseller = "reseller"
	RoleAdmin    = "admin"
)

var roleOwnerKinds = map[string]OwnerKind{
	RoleUser:     OwnerUser,
	RoleReseller: OwnerReseller,
	RoleAdmin:    OwnerAdmin,
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
	Role           string

	// Reseller that created the user, if any
	ParentID *uuid.UUID

	PlanID          *uuid.UUID
	PlanActivatedAt *time.Time
	PlanEndsAt      *time.Time
	UsedSearches    int
}

// Owner reference of the user's wallet
func (u User) Owner() OwnerRef {
	return OwnerRef{ID: u.ID, Kind: roleOwnerKinds[u.Role]}
}

func IsValidRole(role string) bool {
	_, ok := roleOwnerKinds[role]
	return ok
}
