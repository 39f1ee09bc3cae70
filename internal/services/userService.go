package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/models"
	"loomtrade/internal/repositories"
)

type UserService interface {
	GetProfile(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID primitive.ObjectID, update models.UserProfileUpdate) (*models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetProfile(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, update models.UserProfileUpdate) (*models.User, error) {
	fields := bson.M{}
	if update.FullName != nil {
		fields["full_name"] = *update.FullName
	}
	if update.Image != nil {
		fields["image"] = *update.Image
	}
	if update.DOB != nil {
		fields["dob"] = *update.DOB
	}
	if len(fields) > 0 {
		if _, err := s.userRepo.Update(ctx, userID, fields); err != nil {
			return nil, err
		}
	}
	return s.GetProfile(ctx, userID)
}
