package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the capacity in which an account uses CertGuard.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleInstitution Role = "Institution"
	RoleVerifier    Role = "Verifier"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleInstitution, RoleVerifier}

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User is a CertGuard account.
type User struct {
	ID           uuid.UUID `json:"id"         db:"id"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Role         Role      `json:"role"       db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
