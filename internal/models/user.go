package models

import (
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	InitialTrustScore = 100
	// AtRiskTrustScore is the level at which the next fraud flag bans the account.
	AtRiskTrustScore = 25
)

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         Role      `json:"role" bson:"role"`
	TrustScore   int       `json:"trustScore" bson:"trust_score"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// BannedEmail is the durable tombstone left behind when an account is purged.
type BannedEmail struct {
	ID       string    `json:"id" bson:"_id"`
	Email    string    `json:"email" bson:"email"`
	UserID   string    `json:"userId" bson:"user_id"`
	UserName string    `json:"userName" bson:"user_name"`
	Reason   string    `json:"reason" bson:"reason"`
	BannedBy string    `json:"bannedBy" bson:"banned_by"`
	BannedAt time.Time `json:"bannedAt" bson:"banned_at"`
}

const DefaultBanReason = "Multiple fake reports (Trust score reached 0)"

// TrustState is what a submitter (or the admin who flagged them) sees.
type TrustState struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	TrustScore int    `json:"trustScore"`
	AtRisk     bool   `json:"atRisk"`
	Banned     bool   `json:"banned"`
	Deleted    bool   `json:"deleted"`
}

func TrustStateOf(u *User) TrustState {
	return TrustState{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		TrustScore: u.TrustScore,
		AtRisk:     u.TrustScore <= AtRiskTrustScore,
		Banned:     u.TrustScore <= 0,
		Deleted:    false,
	}
}

// NormalizeEmail is the form used for storage and every banned-email lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (r *RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Email) == "" {
		errors["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		errors["email"] = "Email is invalid"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if len(r.Password) < 6 {
		errors["password"] = "Password must be at least 6 characters"
	}
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

func (r *LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}
