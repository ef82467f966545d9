package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/golang-jwt/jwt/v4"
)

// Claims carries the pre-resolved caller identity issued by the
// authorization service.
type Claims struct {
	UserID       string          `json:"user_id"`
	Role         models.UserRole `json:"role"`
	Rooms        []string        `json:"rooms,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() models.Identity {
	return models.Identity{
		UserID:         c.UserID,
		Role:           c.Role,
		RoomIDs:        c.Rooms,
		ParticipantIDs: c.Participants,
	}
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("missing 'user_id' claim in token")
	}
	switch claims.Role {
	case models.RoleOrganizer, models.RoleModerator:
	default:
		return nil, fmt.Errorf("invalid role value in claim: %q", claims.Role)
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	// Browsers cannot set headers on websocket upgrades.
	return r.URL.Query().Get("access_token")
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				errorJSON(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := ParseToken(token, secret)
			if err != nil {
				errorJSON(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		})
	}
}
