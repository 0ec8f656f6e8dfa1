package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a profile record. The ID is supplied by the caller (federated
// identity) and never generated here.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username      string    `gorm:"size:32;not null;uniqueIndex"`
	FirstName     *string   `gorm:"size:64"`
	LastName      *string   `gorm:"size:64"`
	Bio           *string   `gorm:"type:text"`
	AvatarURL     *string   `gorm:"size:512"`
	CoverImageURL *string   `gorm:"size:512"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"`
}

// CreateUserRequest defines the request body for creating a user
type CreateUserRequest struct {
	ID        uuid.UUID `json:"id" validate:"required"`
	Username  string    `json:"username" validate:"required,max=32"`
	FirstName *string   `json:"firstName,omitempty" validate:"omitempty,max=64"`
	LastName  *string   `json:"lastName,omitempty" validate:"omitempty,max=64"`
	Bio       *string   `json:"bio,omitempty" validate:"omitempty,max=2000"`
}

// UpdateUserRequest is a partial update. A nil field is left unchanged; an
// empty first name, last name or bio clears that field.
type UpdateUserRequest struct {
	Username  *string `json:"username,omitempty" validate:"omitempty,min=1,max=32"`
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,max=64"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,max=64"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=2000"`
}

// UserResponse is the public shape of a user
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	FirstName     *string   `json:"firstName"`
	LastName      *string   `json:"lastName"`
	Bio           *string   `json:"bio"`
	AvatarURL     *string   `json:"avatarUrl"`
	CoverImageURL *string   `json:"coverImageUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewUser builds the record for a create request
func NewUser(req CreateUserRequest) *User {
	return &User{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: nonEmpty(req.FirstName),
		LastName:  nonEmpty(req.LastName),
		Bio:       nonEmpty(req.Bio),
	}
}

// ApplyUpdate copies the fields present in req onto u
func (u *User) ApplyUpdate(req UpdateUserRequest) {
	if req.Username != nil {
		u.Username = *req.Username
	}
	if req.FirstName != nil {
		u.FirstName = nonEmpty(req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = nonEmpty(req.LastName)
	}
	if req.Bio != nil {
		u.Bio = nonEmpty(req.Bio)
	}
}

// ToResponse converts the record into its API shape
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// ToResponses converts a slice of users, never returning nil
func ToResponses(users []User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
