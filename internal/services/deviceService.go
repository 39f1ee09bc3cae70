package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/config"
	"loomtrade/internal/metrics"
	"loomtrade/internal/models"
	"loomtrade/internal/repositories"
	"loomtrade/internal/utils"
)

type DeviceService interface {
	// RegisterOrTouch updates an already-known (user, device) pair in place,
	// or inserts a new device after enforcing the per-category and total
	// quotas by evicting oldest devices. Returns the resolved device id and
	// whether the device was new.
	RegisterOrTouch(ctx context.Context, userID primitive.ObjectID, meta models.DeviceMeta) (string, bool, error)
	// IsRegistered reports membership for a (user, device) pair.
	IsRegistered(ctx context.Context, userID primitive.ObjectID, deviceID string) (bool, error)
	// Touch refreshes lastSeen and request metadata for an existing device.
	// Unknown devices are left alone.
	Touch(ctx context.Context, userID primitive.ObjectID, deviceID, userAgent, ip string) error
	// Count returns how many devices the user currently has.
	Count(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type deviceService struct {
	deviceRepo repositories.DeviceRepository
	policy     config.AuthPolicy
	keyLocks   *utils.KeyedMutex
	now        func() time.Time
}

func NewDeviceService(deviceRepo repositories.DeviceRepository, policy config.AuthPolicy) DeviceService {
	return &deviceService{
		deviceRepo: deviceRepo,
		policy:     policy,
		keyLocks:   utils.NewKeyedMutex(),
		now:        time.Now,
	}
}

func (s *deviceService) categoryCap(category string) int {
	switch category {
	case models.DeviceCategoryMobile:
		return s.policy.MobileDeviceCap
	case models.DeviceCategoryLaptop:
		return s.policy.LaptopDeviceCap
	default:
		return s.policy.TotalDeviceCap
	}
}

func (s *deviceService) RegisterOrTouch(ctx context.Context, userID primitive.ObjectID, meta models.DeviceMeta) (string, bool, error) {
	deviceID := meta.DeviceID
	if deviceID == "" {
		deviceID = utils.NewDeviceID()
	}

	// The quota check and the eviction/insert must not interleave with a
	// concurrent registration for the same user.
	unlock := s.keyLocks.Lock("device:" + userID.Hex())
	defer unlock()

	existing, err := s.deviceRepo.FindByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		// Touching never grows the set, no quota check needed.
		update := bson.M{}
		setIfPresent(update, "platform", meta.Platform)
		setIfPresent(update, "company_brand", meta.CompanyBrand)
		setIfPresent(update, "company_device", meta.CompanyDevice)
		setIfPresent(update, "company_model", meta.CompanyModel)
		setIfPresent(update, "app_version", meta.AppVersion)
		setIfPresent(update, "user_agent", meta.UserAgent)
		setIfPresent(update, "ip", meta.IP)
		setIfPresent(update, "name", meta.Name)
		if err := s.deviceRepo.UpdateMeta(ctx, existing.ID, update); err != nil {
			return "", false, err
		}
		return deviceID, false, nil
	}

	category := models.DeviceCategoryFromType(meta.Type)

	devices, err := s.deviceRepo.ListByUser(ctx, userID)
	if err != nil {
		return "", false, err
	}

	// Category cap first: evict the oldest device in the incoming category.
	inCategory := 0
	var oldestInCategory *models.Device
	for i := range devices {
		if devices[i].Category == category {
			if oldestInCategory == nil {
				oldestInCategory = &devices[i]
			}
			inCategory++
		}
	}
	if inCategory >= s.categoryCap(category) && oldestInCategory != nil {
		if err := s.deviceRepo.DeleteByID(ctx, oldestInCategory.ID); err != nil {
			return "", false, err
		}
		metrics.DeviceEvictionsTotal.WithLabelValues("category_cap").Inc()
		log.Info().
			Str("user_id", userID.Hex()).
			Str("evicted_device_id", oldestInCategory.DeviceID).
			Str("category", category).
			Msg("Evicted oldest device in category")
		devices = removeDevice(devices, oldestInCategory.ID)
	}

	// Then the total cap: evict oldest overall until there is room.
	for len(devices) >= s.policy.TotalDeviceCap {
		oldest := devices[0]
		if err := s.deviceRepo.DeleteByID(ctx, oldest.ID); err != nil {
			return "", false, err
		}
		metrics.DeviceEvictionsTotal.WithLabelValues("total_cap").Inc()
		log.Info().
			Str("user_id", userID.Hex()).
			Str("evicted_device_id", oldest.DeviceID).
			Msg("Evicted oldest device to hold total cap")
		devices = devices[1:]
	}

	now := s.now()
	device := &models.Device{
		UserID:        userID,
		DeviceID:      deviceID,
		Type:          meta.Type,
		Category:      category,
		Platform:      meta.Platform,
		CompanyBrand:  meta.CompanyBrand,
		CompanyDevice: meta.CompanyDevice,
		CompanyModel:  meta.CompanyModel,
		AppVersion:    meta.AppVersion,
		UserAgent:     meta.UserAgent,
		IP:            meta.IP,
		Name:          meta.Name,
		LastSeen:      now,
		CreatedAt:     now,
	}
	if _, err := s.deviceRepo.Insert(ctx, device); err != nil {
		return "", false, err
	}

	metrics.DevicesRegisteredTotal.WithLabelValues(category).Inc()
	return deviceID, true, nil
}

func (s *deviceService) IsRegistered(ctx context.Context, userID primitive.ObjectID, deviceID string) (bool, error) {
	device, err := s.deviceRepo.FindByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return false, err
	}
	return device != nil, nil
}

func (s *deviceService) Touch(ctx context.Context, userID primitive.ObjectID, deviceID, userAgent, ip string) error {
	device, err := s.deviceRepo.FindByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}
	update := bson.M{}
	setIfPresent(update, "user_agent", userAgent)
	setIfPresent(update, "ip", ip)
	return s.deviceRepo.UpdateMeta(ctx, device.ID, update)
}

func (s *deviceService) Count(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.deviceRepo.CountByUser(ctx, userID)
}

func setIfPresent(update bson.M, key, value string) {
	if value != "" {
		update[key] = value
	}
}

func removeDevice(devices []models.Device, id primitive.ObjectID) []models.Device {
	out := devices[:0]
	for _, d := range devices {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}
