package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loomtrade/internal/database"
	"loomtrade/internal/models"
	"loomtrade/internal/utils"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	Activate(ctx context.Context, userID primitive.ObjectID) error
	Update(ctx context.Context, userID primitive.ObjectID, updateFields bson.M) (*mongo.UpdateResult, error)
	UpsertByEmail(ctx context.Context, email string, updateFields bson.M) (*models.User, error)
}

type userRepository struct {
	db database.Service
}

func NewUserRepository(db database.Service) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) collection() *mongo.Collection {
	return r.db.Database().Collection("users")
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	status := "success"
	timer := utils.QueryTimer("create", "user", &status)
	defer timer.ObserveDuration()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	_, err := r.collection().InsertOne(ctx, user)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("create", "user").Inc()
		log.Error().Err(err).Str("phone", user.Phone).Msg("Failed to insert user into database")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *userRepository) FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error) {
	status := "success"
	timer := utils.QueryTimer("findByPhone", "user", &status)
	defer timer.ObserveDuration()

	var user models.User
	err := r.collection().FindOne(ctx, bson.M{"phone": phone, "country_code": countryCode}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findByPhone", "user").Inc()
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	status := "success"
	timer := utils.QueryTimer("findByEmail", "user", &status)
	defer timer.ObserveDuration()

	var user models.User
	err := r.collection().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findByEmail", "user").Inc()
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	status := "success"
	timer := utils.QueryTimer("findById", "user", &status)
	defer timer.ObserveDuration()

	var user models.User
	err := r.collection().FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("findById", "user").Inc()
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Activate(ctx context.Context, userID primitive.ObjectID) error {
	status := "success"
	timer := utils.QueryTimer("activate", "user", &status)
	defer timer.ObserveDuration()

	update := bson.M{"$set": bson.M{"is_active": true, "updated_at": time.Now()}}
	_, err := r.collection().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("activate", "user").Inc()
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error activating user")
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, userID primitive.ObjectID, updateFields bson.M) (*mongo.UpdateResult, error) {
	status := "success"
	timer := utils.QueryTimer("update", "user", &status)
	defer timer.ObserveDuration()

	updateFields["updated_at"] = time.Now()
	update := bson.M{"$set": updateFields}
	result, err := r.collection().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("update", "user").Inc()
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error updating user profile")
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return result, nil
}

func (r *userRepository) UpsertByEmail(ctx context.Context, email string, updateFields bson.M) (*models.User, error) {
	status := "success"
	timer := utils.QueryTimer("upsertByEmail", "user", &status)
	defer timer.ObserveDuration()

	updateFields["updated_at"] = time.Now()
	update := bson.M{
		"$set":         updateFields,
		"$setOnInsert": bson.M{"email": email, "created_at": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var user models.User
	err := r.collection().FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&user)
	if err != nil {
		status = "error"
		utils.DBQueryErrorsTotal.WithLabelValues("upsertByEmail", "user").Inc()
		log.Error().Err(err).Str("email", email).Msg("Error upserting user by email")
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &user, nil
}
