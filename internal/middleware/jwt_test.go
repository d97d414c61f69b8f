package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tripmate-api/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func identityApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":    c.Locals(middleware.LocalUserID),
			"email": c.Locals(middleware.LocalUserEmail),
			"name":  c.Locals(middleware.LocalUserName),
		})
	})
	return app
}

func TestJWTProtectedExtractsIdentity(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{
		"sub":   "firebase-uid-1",
		"email": "Rin@Example.com",
		"name":  "Rin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	require.Equal(t, "firebase-uid-1", body["id"])
	require.Equal(t, "rin@example.com", body["email"])
	require.Equal(t, "Rin", body["name"])
}

func TestJWTProtectedAcceptsNumericSubjectAndQueryToken(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{"user_id": 42})

	req := httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	require.Equal(t, "42", body["id"])
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := identityApp()

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	foreignSigned, err := foreign.SignedString([]byte("other"))
	require.NoError(t, err)

	cases := map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic abc",
		"bad signature": "Bearer " + foreignSigned,
		"expired":       "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"empty bearer":  "Bearer   ",
		"unsigned":      "Bearer " + unsignedToken(t),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func unsignedToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed
}

func TestJWTProtectedIgnoresFractionalSubject(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{"sub": 4.5, "uid": "fallback"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	require.Equal(t, "fallback", body["id"])
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
