package handlers

import (
	"net/http"

	"loomtrade/internal/database"
)

type CommonHandler struct {
	db database.Service
}

func NewCommonHandler(db database.Service) *CommonHandler {
	return &CommonHandler{db: db}
}

func (h *CommonHandler) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (h *CommonHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.db.Health())
}
