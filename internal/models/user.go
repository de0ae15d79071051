package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum, stored as the account type
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
	RoleTriage Role = "triage"
)

// ApprovalStatus is derived from the review timestamps
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// User represents a doctor, triage or admin account
type User struct {
	BaseModel
	Email       string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password    string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FirstName   string     `gorm:"size:100" json:"firstName"`
	LastName    string     `gorm:"size:100" json:"lastName"`
	AccountType Role       `gorm:"size:20;index;not null" json:"accountType"`
	Specialty   string     `gorm:"size:100" json:"specialty,omitempty"`
	ApprovedAt  *time.Time `gorm:"index" json:"approvedAt,omitempty"`
	DeniedAt    *time.Time `gorm:"index" json:"deniedAt,omitempty"`
	ReviewedBy  string     `gorm:"size:36" json:"reviewedBy,omitempty"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	AccountType Role           `json:"accountType"`
	Specialty   string         `json:"specialty,omitempty"`
	Status      ApprovalStatus `json:"status"`
	ApprovedAt  *time.Time     `json:"approvedAt,omitempty"`
	DeniedAt    *time.Time     `json:"deniedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// FullName joins first and last name
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Status reports where the account is in the signup review queue.
// Admin accounts are always approved.
func (u *User) Status() ApprovalStatus {
	switch {
	case u.AccountType == RoleAdmin || u.ApprovedAt != nil:
		return ApprovalApproved
	case u.DeniedAt != nil:
		return ApprovalDenied
	}
	return ApprovalPending
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		AccountType: u.AccountType,
		Specialty:   u.Specialty,
		Status:      u.Status(),
		ApprovedAt:  u.ApprovedAt,
		DeniedAt:    u.DeniedAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
