package models

import "fmt"

// Role is the privilege level of a user account.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole converts a wire/query string into a Role.
// Only the exact enum values are accepted.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("invalid user type '%s'", s)
	}
}

// UserRecord is the full persisted user account, including the credential
// hash. It must never be sent over the wire; use Public().
type UserRecord struct {
	ID           string `json:"id"`            // 1-32 alphanumerics, unique
	Type         Role   `json:"type"`          // ADMIN or USER
	Enabled      bool   `json:"enabled"`       // disabled users cannot authenticate
	PasswordHash string `json:"password_hash"` // bcrypt (salted, algorithm-tagged)
}

// Public returns the projection of the record safe for responses.
func (r UserRecord) Public() User {
	return User{ID: r.ID, Type: r.Type, Enabled: r.Enabled}
}

// User is the public projection of a user account.
type User struct {
	ID      string `json:"id"`
	Type    Role   `json:"type"`
	Enabled bool   `json:"enabled"`
}

// FileMetadata is the metadata view of a stored file. Created doubles as the
// file id (epoch milliseconds at creation time).
type FileMetadata struct {
	Owner       string   `json:"owner"`
	Created     int64    `json:"created"`
	Modified    int64    `json:"modified"`
	SharedUsers []string `json:"shared_users"`
}
