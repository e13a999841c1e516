// internal/models/user.go
package models

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Name         string `json:"name" gorm:"size:120;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `json:"-" gorm:"size:255;not null"`
	Role         Role   `json:"role" gorm:"type:varchar(20);not null;index"`
	// RegisterNo is NULL for staff so the unique index only binds students.
	RegisterNo       *string    `json:"register_no,omitempty" gorm:"uniqueIndex;size:50"`
	Department       string     `json:"department,omitempty" gorm:"size:100;index"`
	Year             string     `json:"year,omitempty" gorm:"size:20"`
	FacultyAdvisorID *uuid.UUID `json:"faculty_advisor_id,omitempty" gorm:"type:uuid;index"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) RegisterNumber() string {
	if u.RegisterNo == nil {
		return ""
	}
	return *u.RegisterNo
}

// Actor returns the identity this user acts under in the workflow.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Department: u.Department}
}
