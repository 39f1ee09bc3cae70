package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loomtrade/internal/database"
	"loomtrade/internal/models"
	"loomtrade/internal/utils"
)

type OTPRepository interface {
	FindByKey(ctx context.Context, phone, countryCode string) (*models.OTP, error)
	FindByKeyAndHints(ctx context.Context, phone, countryCode string, hints models.DeviceMeta) (*models.OTP, error)
	Upsert(ctx context.Context, otp *models.OTP) (*models.OTP, error)
	MarkStatus(ctx context.Context, otpID primitive.ObjectID, otpStatus string) error
	DeleteByKey(ctx context.Context, phone, countryCode string) error
	DeleteExpired(ctx context.Context) error
}

type otpRepository struct {
	db database.Service
}

func NewOTPRepository(db database.Service) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) collection() *mongo.Collection {
	return r.db.Database().Collection("otps")
}

func (r *otpRepository) FindByKey(ctx context.Context, phone, countryCode string) (*models.OTP, error) {
	status := "success"
	timer := utils.QueryTimer("findByKey", "otp", &status)
	defer timer.ObserveDuration()

	var otp models.OTP
	filter := bson.M{"phone": phone, "country_code": countryCode}
	err := r.collection().FindOne(ctx, filter).Decode(&otp)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findByKey", "otp").Inc()
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}
	return &otp, nil
}

// FindByKeyAndHints narrows the lookup by any non-empty device hints so a
// code bound to one device cannot be replayed against another device's
// claimed context.
func (r *otpRepository) FindByKeyAndHints(ctx context.Context, phone, countryCode string, hints models.DeviceMeta) (*models.OTP, error) {
	status := "success"
	timer := utils.QueryTimer("findByKeyAndHints", "otp", &status)
	defer timer.ObserveDuration()

	filter := bson.M{"phone": phone, "country_code": countryCode}
	if hints.DeviceID != "" {
		filter["device_meta.device_id"] = hints.DeviceID
	}
	if hints.CompanyBrand != "" {
		filter["device_meta.company_brand"] = hints.CompanyBrand
	}
	if hints.CompanyDevice != "" {
		filter["device_meta.company_device"] = hints.CompanyDevice
	}
	if hints.CompanyModel != "" {
		filter["device_meta.company_model"] = hints.CompanyModel
	}
	if hints.AppVersion != "" {
		filter["device_meta.app_version"] = hints.AppVersion
	}

	var otp models.OTP
	err := r.collection().FindOne(ctx, filter).Decode(&otp)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findByKeyAndHints", "otp").Inc()
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}
	return &otp, nil
}

// Upsert replaces the single live record for (phone, country code) with the
// given one. At most one record exists per key at any time.
func (r *otpRepository) Upsert(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
	status := "success"
	timer := utils.QueryTimer("upsert", "otp", &status)
	defer timer.ObserveDuration()

	now := time.Now()
	filter := bson.M{"phone": otp.Phone, "country_code": otp.CountryCode}
	update := bson.M{
		"$set": bson.M{
			"code_hash":         otp.CodeHash,
			"purpose":           otp.Purpose,
			"pending_full_name": otp.PendingFullName,
			"status":            models.OTPStatusPending,
			"device_meta":       otp.DeviceMeta,
			"expiry":            otp.Expiry,
			"sent_at":           otp.SentAt,
			"send_count":        otp.SendCount,
			"window_start":      otp.WindowStart,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{
			"phone":        otp.Phone,
			"country_code": otp.CountryCode,
			"created_at":   now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.OTP
	err := r.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("upsert", "otp").Inc()
		return nil, fmt.Errorf("failed to upsert otp: %w", err)
	}
	return &saved, nil
}

func (r *otpRepository) MarkStatus(ctx context.Context, otpID primitive.ObjectID, otpStatus string) error {
	status := "success"
	timer := utils.QueryTimer("markStatus", "otp", &status)
	defer timer.ObserveDuration()

	update := bson.M{"$set": bson.M{"status": otpStatus, "updated_at": time.Now()}}
	_, err := r.collection().UpdateOne(ctx, bson.M{"_id": otpID}, update)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("markStatus", "otp").Inc()
		return fmt.Errorf("failed to mark otp %s: %w", otpStatus, err)
	}
	return nil
}

// DeleteByKey removes the record unconditionally. Idempotent.
func (r *otpRepository) DeleteByKey(ctx context.Context, phone, countryCode string) error {
	status := "success"
	timer := utils.QueryTimer("deleteByKey", "otp", &status)
	defer timer.ObserveDuration()

	_, err := r.collection().DeleteOne(ctx, bson.M{"phone": phone, "country_code": countryCode})
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("deleteByKey", "otp").Inc()
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context) error {
	status := "success"
	timer := utils.QueryTimer("deleteExpired", "otp", &status)
	defer timer.ObserveDuration()

	_, err := r.collection().DeleteMany(ctx, bson.M{"expiry": bson.M{"$lt": time.Now()}})
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("deleteExpired", "otp").Inc()
		return fmt.Errorf("failed to delete expired otps: %w", err)
	}
	return nil
}
