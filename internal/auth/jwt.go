package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
	claimIssued  = "iat"
	claimExpires = "exp"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
// Tokens are read from the Authorization header or the token query parameter,
// the latter being what browser websocket clients can send.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// UserIDFromContext extracts the user id from JWT claims.
func UserIDFromContext(c echo.Context) (string, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", err
	}
	if userID := claimString(claims, claimUserID); userID != "" {
		return userID, nil
	}
	if userID := claimString(claims, claimSubject); userID != "" {
		return userID, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
}

// GenerateToken creates a signed JWT for the user.
func GenerateToken(userID, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: userID,
		claimUserID:  userID,
		claimIssued:  now.Unix(),
		claimExpires: expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken validates an HS256 token and returns its user id. It serves
// transports that authenticate outside the echo middleware chain.
func VerifyToken(tokenString, secret string) (string, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return "", fmt.Errorf("token is required")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if userID := claimString(claims, claimUserID); userID != "" {
		return userID, nil
	}
	if userID := claimString(claims, claimSubject); userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("user id missing")
}

// RefreshTokenFromContext issues a new token for the authenticated user with
// the same lifetime as the presented one, or defaultExpiresIn when the
// presented token carries no usable iat/exp pair.
func RefreshTokenFromContext(c echo.Context, secret string, defaultExpiresIn time.Duration) (string, time.Time, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	userID := claimString(claims, claimUserID)
	if userID == "" {
		userID = claimString(claims, claimSubject)
	}
	if userID == "" {
		return "", time.Time{}, echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
	}
	expiresIn := defaultExpiresIn
	iat, iatErr := claims.GetIssuedAt()
	exp, expErr := claims.GetExpirationTime()
	if iatErr == nil && expErr == nil && iat != nil && exp != nil {
		if lifetime := exp.Sub(iat.Time); lifetime > 0 {
			expiresIn = lifetime
		}
	}
	return GenerateToken(userID, secret, expiresIn)
}

// ExpiryOf reads the exp claim of token without verifying its signature.
// ok is false when the token has no exp claim.
func ExpiryOf(token string) (expiresAt time.Time, ok bool, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, false, nil
	}
	return exp.Time, true, nil
}

func claimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
