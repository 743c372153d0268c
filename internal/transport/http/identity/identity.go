// Package identity verifies the signed token that carries the caller's user
// id and exposes it to handlers.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

const userIDKey = "identity.user_id"

// Module provides the Verifier to Fx.
var Module = fx.Provide(NewVerifier)

var errMissingToken = errors.New("missing token")

type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Verifier issues and checks HS256 identity tokens.
type Verifier struct {
	secret []byte
	cookie string
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		secret: []byte(cfg.Auth.JWTSecret),
		cookie: cfg.Auth.CookieName,
		ttl:    cfg.Auth.TokenTTL,
		now:    time.Now,
	}
}

// Issue signs a token for userID.
func (v *Verifier) Issue(userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// Parse validates raw and returns the user id it carries.
func (v *Verifier) Parse(raw string) (int64, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return 0, err
	}
	if !token.Valid || c.UserID <= 0 {
		return 0, errors.New("token carries no user")
	}
	return c.UserID, nil
}

// Middleware rejects requests without a valid token, read from the
// configured cookie or an Authorization bearer header.
func (v *Verifier) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := v.token(c)
			if err == nil {
				var userID int64
				if userID, err = v.Parse(raw); err == nil {
					SetUserID(c, userID)
					return next(c)
				}
			}
			return response.New(c).
				WithError(errorbank.Unauthorized("authentication required", errorbank.WithCause(err))).
				Build()
		}
	}
}

func (v *Verifier) token(c echo.Context) (string, error) {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if raw, ok := strings.CutPrefix(h, "Bearer "); ok && raw != "" {
			return raw, nil
		}
	}
	if v.cookie != "" {
		if ck, err := c.Cookie(v.cookie); err == nil && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errMissingToken
}

// SetUserID records the authenticated user on the request context.
func SetUserID(c echo.Context, userID int64) {
	c.Set(userIDKey, userID)
}

// UserID returns the authenticated user id, or 0 outside the middleware.
func UserID(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}
