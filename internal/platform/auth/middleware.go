package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims are the token claims the clinic reads. The identity provider may
// send a single role or a list; the first clinic role found wins.
type Claims struct {
	jwt.RegisteredClaims
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// role resolves the clinic role carried by the claims.
func (c *Claims) role() (Role, bool) {
	if r, ok := ParseRole(c.Role); ok {
		return r, true
	}
	for _, s := range c.Roles {
		if r, ok := ParseRole(s); ok {
			return r, true
		}
	}
	return "", false
}

// AuthSkipper lets the health routes through without a token. It matches
// on the registered route, so it must run after routing.
func AuthSkipper(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/health/db", "/health/feed":
		return true
	}
	return false
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

// JWTMiddleware validates bearer tokens and stores the caller's Principal in
// the request context. Tokens without a clinic role are rejected.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	switch {
	case len(cfg.SigningKey) > 0:
		keyFunc = func(t *jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	case cfg.JWKSURL != "" || cfg.Issuer != "":
		keyFunc = newStaffKeys(cfg.JWKSURL, cfg.Issuer).keyFunc
	}

	methods := []string{"RS256"}
	if len(cfg.SigningKey) > 0 {
		methods = []string{"HS256"}
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}
			if keyFunc == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token verification unavailable")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}
			role, ok := claims.role()
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "token carries no clinic role")
			}

			setPrincipal(c, Principal{UserID: claims.Subject, Role: role})
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on websocket upgrades.
		if t := r.URL.Query().Get("access_token"); t != "" && strings.HasPrefix(r.URL.Path, "/ws") {
			return t, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setPrincipal(c echo.Context, p Principal) {
	c.Set("user_id", p.UserID)
	c.Set("role", string(p.Role))
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// may pick their identity with the X-Dev-User and X-Dev-Role headers and
// default to an admin.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := Principal{UserID: "dev-user", Role: RoleAdmin}
			if u := c.Request().Header.Get("X-Dev-User"); u != "" {
				p.UserID = u
			}
			if h := c.Request().Header.Get("X-Dev-Role"); h != "" {
				role, ok := ParseRole(h)
				if !ok {
					return echo.NewHTTPError(http.StatusForbidden, "unknown role "+h)
				}
				p.Role = role
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}
