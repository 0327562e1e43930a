package models

import "time"

// Behavioral archetypes the classifier may assign.
const (
	ProfileCautious      = "Cautious"
	ProfileBalanced      = "Balanced"
	ProfileOpportunistic = "Opportunistic"
	ProfileImpulsive     = "Impulsive"
	ProfileExploratory   = "Exploratory"
)

// ProfileTypes lists the archetypes in the order they are offered to the classifier.
var ProfileTypes = []string{
	ProfileCautious,
	ProfileBalanced,
	ProfileOpportunistic,
	ProfileImpulsive,
	ProfileExploratory,
}

// IsProfileType reports whether s names a known archetype.
func IsProfileType(s string) bool {
	for _, p := range ProfileTypes {
		if p == s {
			return true
		}
	}
	return false
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserProfile is the last classification stored on the user record.
type UserProfile struct {
	ProfileType string   `json:"profile_type"`
	Confidence  float64  `json:"confidence"`
	Signals     []string `json:"signals"`
}

type User struct {
	ID               string       `json:"id"`
	Username         string       `json:"username"`
	Email            string       `json:"email"`
	HashedPassword   []byte       `json:"-"`
	Profile          *UserProfile `json:"profile,omitempty"`
	ProfileUpdatedAt *time.Time   `json:"profile_updated_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
