package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const dbName = "loomtrade"

type Service interface {
	Health() map[string]string
	Client() *mongo.Client
	Database() *mongo.Database
	Close(ctx context.Context) error
}

type service struct {
	db *mongo.Client
}

var (
	host = os.Getenv("MONGO_HOST")
	port = os.Getenv("MONGO_PORT")
)

func New() Service {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" && host != "" {
		mongoURI = fmt.Sprintf("mongodb://%s:%s", host, port)
	}
	if mongoURI == "" {
		log.Fatal().Msg("MONGO_URI environment variable not set")
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	return &service{
		db: client,
	}
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := s.db.Ping(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("Database health check failed")
		return map[string]string{
			"message": "db down",
			"error":   err.Error(),
		}
	}

	return map[string]string{
		"message": "It's healthy",
	}
}

func (s *service) Client() *mongo.Client {
	return s.db
}

func (s *service) Database() *mongo.Database {
	return s.db.Database(dbName)
}

func (s *service) Close(ctx context.Context) error {
	return s.db.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the auth core relies on: one live OTP per
// (phone, country code), one device row per (user, device), and a TTL reaper
// that clears OTP documents a day after expiry as a safety net (deletion on
// successful verification is the correctness mechanism).
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	otpIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phone", Value: 1}, {Key: "country_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiry", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(24 * 60 * 60),
		},
	}
	if _, err := db.Collection("otps").Indexes().CreateMany(ctx, otpIndexes); err != nil {
		return fmt.Errorf("failed to create otp indexes: %w", err)
	}

	deviceIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "device_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection("devices").Indexes().CreateOne(ctx, deviceIndex); err != nil {
		return fmt.Errorf("failed to create device index: %w", err)
	}

	userIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}, {Key: "country_code", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection("users").Indexes().CreateOne(ctx, userIndex); err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}

	return nil
}
