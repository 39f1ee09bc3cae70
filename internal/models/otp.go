package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTP purposes. Signup verification activates a pending account; login
// verification only registers the device and issues a token.
const (
	OTPPurposeSignup = "signup"
	OTPPurposeLogin  = "login"
)

// OTP statuses. These are audit markers; the authoritative validity check is
// always code match plus expiry.
const (
	OTPStatusPending = "pending"
	OTPStatusUsed    = "used"
	OTPStatusExpired = "expired"
)

// DeviceMeta is a snapshot of the device attempting to authenticate, captured
// at send time so verification can register the right device even when the
// client omits it later.
type DeviceMeta struct {
	DeviceID      string `bson:"device_id,omitempty" json:"device_id,omitempty"`
	Type          string `bson:"type,omitempty" json:"type,omitempty"`
	Platform      string `bson:"platform,omitempty" json:"platform,omitempty"`
	CompanyBrand  string `bson:"company_brand,omitempty" json:"company_brand,omitempty"`
	CompanyDevice string `bson:"company_device,omitempty" json:"company_device,omitempty"`
	CompanyModel  string `bson:"company_model,omitempty" json:"company_model,omitempty"`
	AppVersion    string `bson:"app_version,omitempty" json:"app_version,omitempty"`
	UserAgent     string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	IP            string `bson:"ip,omitempty" json:"ip,omitempty"`
	Name          string `bson:"name,omitempty" json:"name,omitempty"`
}

// IsZero reports whether no field of the snapshot is set.
func (m DeviceMeta) IsZero() bool {
	return m == DeviceMeta{}
}

// OTP is the one live code per (phone, country code) pair, upserted on every
// send. The rate fields (SentAt, SendCount, WindowStart) carry the cooldown
// and rolling-window bookkeeping so it survives restarts.
type OTP struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Phone           string             `bson:"phone" json:"phone"`
	CountryCode     string             `bson:"country_code" json:"country_code"`
	CodeHash        string             `bson:"code_hash" json:"-"`
	Purpose         string             `bson:"purpose" json:"purpose"`
	PendingFullName string             `bson:"pending_full_name,omitempty" json:"pending_full_name,omitempty"`
	Status          string             `bson:"status" json:"status"`
	DeviceMeta      DeviceMeta         `bson:"device_meta,omitempty" json:"device_meta,omitempty"`
	Expiry          time.Time          `bson:"expiry" json:"expiry"`
	SentAt          time.Time          `bson:"sent_at" json:"sent_at"`
	SendCount       int                `bson:"send_count" json:"send_count"`
	WindowStart     time.Time          `bson:"window_start" json:"window_start"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the code is no longer usable. Validity requires
// now strictly before Expiry.
func (o *OTP) IsExpired(now time.Time) bool {
	return !now.Before(o.Expiry)
}
