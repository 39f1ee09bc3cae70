package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"

	"loomtrade/internal/config"
	"loomtrade/internal/database"
	"loomtrade/internal/middlewares"
	"loomtrade/internal/repositories"
	"loomtrade/internal/services"
)

const otpReapInterval = 10 * time.Minute

type Server struct {
	port           int
	httpServer     *http.Server
	db             database.Service
	policy         config.AuthPolicy
	authService    services.AuthService
	userService    services.UserService
	oauthService   services.OAuthService
	otpService     services.OTPService
	deviceService  services.DeviceService
	authMiddleware *middlewares.AuthMiddleware
}

func NewServer() *Server {
	portStr := os.Getenv("PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Warn().Str("port", portStr).Msg("Invalid PORT environment variable, using default 8080")
		port = 8080
	}

	db := database.New()
	policy := config.LoadAuthPolicy()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.EnsureIndexes(ctx, db.Database()); err != nil {
		log.Fatal().Err(err).Msg("Failed to create database indexes")
	}

	userRepo := repositories.NewUserRepository(db)
	otpRepo := repositories.NewOTPRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)

	smsSender, err := services.NewSMSSenderFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure SMS sender")
	}

	otpService := services.NewOTPService(userRepo, otpRepo, policy)
	deviceService := services.NewDeviceService(deviceRepo, policy)

	s := &Server{
		port:           port,
		db:             db,
		policy:         policy,
		authService:    services.NewAuthService(userRepo, otpService, deviceService, smsSender, policy),
		userService:    services.NewUserService(userRepo),
		oauthService:   services.NewOAuthService(userRepo, policy),
		otpService:     otpService,
		deviceService:  deviceService,
		authMiddleware: middlewares.NewAuthMiddleware(userRepo, deviceService),
	}

	services.InitializeGoth()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	go s.reapExpiredOTPs()
	log.Info().Int("port", s.port).Msg("Starting server")
	return s.httpServer.ListenAndServe()
}

// reapExpiredOTPs is a safety net behind the store's TTL index; deletion on
// successful verification remains the correctness mechanism.
func (s *Server) reapExpiredOTPs() {
	for {
		time.Sleep(otpReapInterval)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.otpService.ReapExpired(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to reap expired OTP records")
		}
		cancel()
	}
}

func (s *Server) GracefulShutdown(done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown with error")
	}

	if err := s.db.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}

	log.Info().Msg("Server exiting")
	done <- true
}
