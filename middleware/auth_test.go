package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims Claims, secret []byte) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	var got models.Identity
	handler := Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid := signToken(t, Claims{UserID: "u1", Role: models.RoleModerator, Rooms: []string{"r1"}, Participants: []string{"p1"}}, testSecret)
	expired := signToken(t, Claims{
		UserID:           "u1",
		Role:             models.RoleOrganizer,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}, testSecret)
	badRole := signToken(t, Claims{UserID: "u1", Role: "player"}, testSecret)
	noUser := signToken(t, Claims{Role: models.RoleOrganizer}, testSecret)
	wrongKey := signToken(t, Claims{UserID: "u1", Role: models.RoleOrganizer}, []byte("other"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "valid header", header: "Bearer " + valid, want: http.StatusOK},
		{name: "valid query", query: "?access_token=" + valid, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "unknown role", header: "Bearer " + badRole, want: http.StatusUnauthorized},
		{name: "no user", header: "Bearer " + noUser, want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + wrongKey, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = models.Identity{}
			req := httptest.NewRequest(http.MethodGet, "/api/rooms"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got.UserID != "u1" || got.Role != models.RoleModerator || len(got.RoomIDs) != 1 || got.ParticipantIDs[0] != "p1" {
		t.Fatalf("unexpected identity in context: %+v", got)
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1", Role: models.RoleOrganizer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
