package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loomtrade/internal/handlers"
	"loomtrade/internal/middlewares"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	promMiddleware := middlewares.NewPrometheusMiddleware()
	r.Use(middlewares.CorsMiddleware)
	r.Use(middlewares.RateLimit)
	r.Use(promMiddleware.Instrument)

	ch := handlers.NewCommonHandler(s.db)
	r.HandleFunc("/", ch.HelloWorldHandler)
	r.HandleFunc("/health", ch.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	s.registerAuthRoutes(r)
	s.registerUserRoutes(r)

	return r
}

func (s *Server) registerAuthRoutes(r *mux.Router) {
	ah := handlers.NewAuthHandler(s.authService, s.oauthService, s.policy.OTPLength)

	r.HandleFunc("/api/auth/signup", ah.Signup).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/send-otp", ah.SendOTP).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/verify-otp", ah.VerifyOTP).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/resend-otp", ah.ResendOTP).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/auth/{provider}", ah.ProviderAuth).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/auth/{provider}/callback", ah.ProviderCallback).Methods("GET", "OPTIONS")
}

func (s *Server) registerUserRoutes(r *mux.Router) {
	uh := handlers.NewUserHandler(s.userService)

	r.Handle("/api/me", s.authMiddleware.Guard(http.HandlerFunc(uh.GetMyProfile))).Methods("GET", "OPTIONS")
	r.Handle("/api/me", s.authMiddleware.Guard(http.HandlerFunc(uh.UpdateMyProfile))).Methods("PATCH", "PUT", "OPTIONS")
}
