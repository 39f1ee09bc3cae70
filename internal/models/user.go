package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account keyed by phone + country code. IsActive=false marks a
// pending registration awaiting its first successful OTP verification.
type User struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	FullName    string             `json:"full_name" bson:"full_name"`
	Phone       string             `json:"phone" bson:"phone"`
	CountryCode string             `json:"country_code" bson:"country_code"`
	Email       string             `json:"email,omitempty" bson:"email,omitempty"`
	Image       string             `json:"image,omitempty" bson:"image,omitempty"`
	DOB         *time.Time         `json:"dob,omitempty" bson:"dob,omitempty"`
	IsActive    bool               `json:"is_active" bson:"is_active"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// UserProfileUpdate carries the owner-mutable profile fields.
type UserProfileUpdate struct {
	FullName *string    `json:"full_name,omitempty" bson:"full_name,omitempty"`
	Image    *string    `json:"image,omitempty" bson:"image,omitempty"`
	DOB      *time.Time `json:"dob,omitempty" bson:"dob,omitempty"`
}
