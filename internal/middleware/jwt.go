package middleware

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/tripmate-api/internal/utils"
)

// Locals keys populated from verified token claims.
const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
	LocalUserName  = "user_name"
)

var (
	errTokenMissing = errors.New("authorization header missing")
	errTokenScheme  = errors.New("invalid authorization header")
)

// Subject claims in lookup order. Identity providers disagree on the name.
var subjectClaims = []string{"sub", "user_id", "uid", "id"}

// JWTProtected verifies HMAC-signed bearer tokens and stores the caller's
// id, email and display name in Locals. A token without a usable subject
// still passes here; RequireUser rejects it.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if id := subjectFromClaims(claims); id != "" {
			c.Locals(LocalUserID, id)
		}
		if email := stringClaim(claims, "email"); email != "" {
			c.Locals(LocalUserEmail, strings.ToLower(email))
		}
		if name := stringClaim(claims, "name"); name != "" {
			c.Locals(LocalUserName, name)
		}

		return c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query that websocket upgrades from browsers have to use.
func bearerToken(c *fiber.Ctx) (string, error) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", errTokenMissing
	}

	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errTokenScheme
	}
	return token, nil
}

func subjectFromClaims(claims jwt.MapClaims) string {
	for _, key := range subjectClaims {
		switch v := claims[key].(type) {
		case string:
			if id := strings.TrimSpace(v); id != "" {
				return id
			}
		case float64:
			// JSON numbers decode as float64.
			if v >= 0 && v == float64(uint64(v)) {
				return strconv.FormatUint(uint64(v), 10)
			}
		}
	}
	return ""
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
