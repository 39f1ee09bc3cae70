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

type DeviceRepository interface {
	FindByUserAndDevice(ctx context.Context, userID primitive.ObjectID, deviceID string) (*models.Device, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Device, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	Insert(ctx context.Context, device *models.Device) (*models.Device, error)
	UpdateMeta(ctx context.Context, id primitive.ObjectID, updateFields bson.M) error
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
}

type deviceRepository struct {
	db database.Service
}

func NewDeviceRepository(db database.Service) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) collection() *mongo.Collection {
	return r.db.Database().Collection("devices")
}

func (r *deviceRepository) FindByUserAndDevice(ctx context.Context, userID primitive.ObjectID, deviceID string) (*models.Device, error) {
	status := "success"
	timer := utils.QueryTimer("findByUserAndDevice", "device", &status)
	defer timer.ObserveDuration()

	var device models.Device
	filter := bson.M{"user_id": userID, "device_id": deviceID}
	err := r.collection().FindOne(ctx, filter).Decode(&device)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findByUserAndDevice", "device").Inc()
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return &device, nil
}

// ListByUser returns the user's devices oldest first. The _id tiebreak makes
// eviction order deterministic when two devices share a created_at.
func (r *deviceRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Device, error) {
	status := "success"
	timer := utils.QueryTimer("listByUser", "device", &status)
	defer timer.ObserveDuration()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("listByUser", "device").Inc()
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer cursor.Close(ctx)

	var devices []models.Device
	if err := cursor.All(ctx, &devices); err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("listByUser", "device").Inc()
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}

func (r *deviceRepository) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	status := "success"
	timer := utils.QueryTimer("countByUser", "device", &status)
	defer timer.ObserveDuration()

	count, err := r.collection().CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("countByUser", "device").Inc()
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

func (r *deviceRepository) Insert(ctx context.Context, device *models.Device) (*models.Device, error) {
	status := "success"
	timer := utils.QueryTimer("insert", "device", &status)
	defer timer.ObserveDuration()

	if device.ID.IsZero() {
		device.ID = primitive.NewObjectID()
	}
	_, err := r.collection().InsertOne(ctx, device)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("insert", "device").Inc()
		return nil, fmt.Errorf("failed to insert device: %w", err)
	}
	return device, nil
}

func (r *deviceRepository) UpdateMeta(ctx context.Context, id primitive.ObjectID, updateFields bson.M) error {
	status := "success"
	timer := utils.QueryTimer("updateMeta", "device", &status)
	defer timer.ObserveDuration()

	updateFields["last_seen"] = time.Now()
	_, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updateFields})
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("updateMeta", "device").Inc()
		return fmt.Errorf("failed to update device: %w", err)
	}
	return nil
}

func (r *deviceRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	status := "success"
	timer := utils.QueryTimer("deleteById", "device", &status)
	defer timer.ObserveDuration()

	_, err := r.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("deleteById", "device").Inc()
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}
