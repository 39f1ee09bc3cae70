package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Device categories used for differentiated quota limits.
const (
	DeviceCategoryMobile = "mobile"
	DeviceCategoryLaptop = "laptop"
	DeviceCategoryOther  = "other"
)

// Device is one registered device for a user; (UserID, DeviceID) is unique.
type Device struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	DeviceID      string             `bson:"device_id" json:"device_id"`
	Type          string             `bson:"type,omitempty" json:"type,omitempty"`
	Category      string             `bson:"category" json:"category"`
	Platform      string             `bson:"platform,omitempty" json:"platform,omitempty"`
	CompanyBrand  string             `bson:"company_brand,omitempty" json:"company_brand,omitempty"`
	CompanyDevice string             `bson:"company_device,omitempty" json:"company_device,omitempty"`
	CompanyModel  string             `bson:"company_model,omitempty" json:"company_model,omitempty"`
	AppVersion    string             `bson:"app_version,omitempty" json:"app_version,omitempty"`
	UserAgent     string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	IP            string             `bson:"ip,omitempty" json:"ip,omitempty"`
	Name          string             `bson:"name,omitempty" json:"name,omitempty"`
	LastSeen      time.Time          `bson:"last_seen" json:"last_seen"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// DeviceCategoryFromType classifies a raw client-reported type string.
// tablet/mobile count as mobile, laptop/pc as laptop, anything else
// (including empty or unknown strings) as other.
func DeviceCategoryFromType(rawType string) string {
	switch strings.ToLower(strings.TrimSpace(rawType)) {
	case "tablet", "mobile":
		return DeviceCategoryMobile
	case "laptop", "pc":
		return DeviceCategoryLaptop
	default:
		return DeviceCategoryOther
	}
}
