package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tripmate-api/internal/config"
	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/handler"
	"github.com/noah-isme/tripmate-api/internal/middleware"
	"github.com/noah-isme/tripmate-api/internal/router"
	"github.com/noah-isme/tripmate-api/internal/service"
)

const secret = "router-secret"

type tripStub struct {
	owner service.TripOwner
}

func (s *tripStub) Create(context.Context, service.TripOwner, dto.TripCreateRequest) (dto.TripResponse, error) {
	return dto.TripResponse{}, nil
}

func (s *tripStub) Update(context.Context, service.TripOwner, uint, dto.TripUpdateRequest) (dto.TripResponse, error) {
	return dto.TripResponse{}, nil
}

func (s *tripStub) Get(context.Context, service.TripOwner, uint) (dto.TripResponse, error) {
	return dto.TripResponse{}, service.ErrTripNotFound
}

func (s *tripStub) List(_ context.Context, owner service.TripOwner) ([]dto.TripResponse, error) {
	s.owner = owner
	return []dto.TripResponse{}, nil
}

func (s *tripStub) Delete(context.Context, service.TripOwner, uint) error { return nil }

func (s *tripStub) Schedules(context.Context, service.TripOwner, uint) ([]dto.ScheduleResponse, error) {
	return nil, nil
}

func newApp(trips service.TripService) *fiber.App {
	app := fiber.New()
	cfg := config.Config{AppName: "TripMate API", AppEnv: "test"}
	router.Register(app, cfg, router.Dependencies{
		TripHandler:   handler.NewTripHandler(trips, zerolog.Nop()),
		JWTMiddleware: middleware.JWTProtected(secret),
	})
	return app
}

func TestHealthIsPublic(t *testing.T) {
	resp, err := newApp(&tripStub{}).Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "TripMate API", resp.Header.Get("X-Application"))
}

func TestMetricsEndpoint(t *testing.T) {
	resp, err := newApp(&tripStub{}).Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTripsRequireToken(t *testing.T) {
	resp, err := newApp(&tripStub{}).Test(httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestTripsRejectTokenWithoutSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "ana@example.com"}).SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := newApp(&tripStub{}).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestTripsWithTokenReachHandler(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-42", "name": "Ana"}).SignedString([]byte(secret))
	require.NoError(t, err)

	stub := &tripStub{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := newApp(stub).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, service.TripOwner{ID: "user-42", Name: "Ana"}, stub.owner)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	resp, err := newApp(&tripStub{}).Test(httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
