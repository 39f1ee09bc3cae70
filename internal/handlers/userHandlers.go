package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/middlewares"
	"loomtrade/internal/models"
	"loomtrade/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func requestUserID(r *http.Request) (primitive.ObjectID, bool) {
	userIDStr, ok := r.Context().Value(middlewares.UserIDKey).(string)
	if !ok {
		return primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return userID, true
}

func (u *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		log.Error().Msg("User ID not found in context for GetMyProfile")
		respondError(w, http.StatusInternalServerError, "User ID not found in context")
		return
	}

	user, err := u.userService.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error fetching profile")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (u *UserHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		log.Error().Msg("User ID not found in context for UpdateMyProfile")
		respondError(w, http.StatusInternalServerError, "User ID not found in context")
		return
	}

	var update models.UserProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.FullName != nil && *update.FullName == "" {
		respondError(w, http.StatusBadRequest, "Full name cannot be empty")
		return
	}

	user, err := u.userService.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error updating profile")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, user)
}
