package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"minder/internal/users"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const claimsKey contextKey = "claims"

// Claims identify an admin user; the subject is the username.
type Claims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(username string, admin bool) (string, error) {
	now := s.clk.Now()
	claims := &Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clk.Now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.users.Authenticate(r.Context(), username, password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		s.log.Warn("Failed login", zap.String("username", username), zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	token, err := s.issueToken(user.Username, user.IsAdmin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("User logged in", zap.String("username", user.Username))
	writeData(w, http.StatusOK, "Logged in", 1, map[string]any{
		"token":      token,
		"username":   user.Username,
		"is_admin":   user.IsAdmin,
		"expires_in": int(s.cfg.TokenTTL.Seconds()),
	})
}

// withAuth requires a bearer token. Websocket clients that cannot set headers may
// pass it as the token query parameter instead.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")
		if header := r.Header.Get("Authorization"); header != "" {
			raw = strings.TrimPrefix(header, "Bearer ")
			if raw == header {
				writeError(w, http.StatusUnauthorized, "Invalid authorization format")
				return
			}
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// ClaimsFrom returns the claims of an authenticated request.
func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}
