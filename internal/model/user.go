package model

import "time"

// Role is the coarse authorization role of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
	RoleParent  Role = "parent"
)

// User is any account that can authenticate: students, admins and parents.
type User struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	CollegeID     string    `json:"college_id,omitempty"`
	Branch        string    `json:"branch,omitempty"`
	ExternalLabel string    `json:"external_label,omitempty"`
	ParentID      *int      `json:"parent_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
