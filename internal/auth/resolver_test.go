package auth

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, key string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestResolver_Subject(t *testing.T) {
	valid := sign(t, "some-key", jwt.RegisteredClaims{Subject: "user-1"})
	noSubject := sign(t, "some-key", jwt.RegisteredClaims{Issuer: "backend"})

	tests := []struct {
		name    string
		secret  string
		header  string
		want    string
		wantErr error
	}{
		{name: "decodes without verification", header: valid, want: "user-1"},
		{name: "accepts bearer prefix", header: "Bearer " + valid, want: "user-1"},
		{name: "empty header", header: "", wantErr: ErrMissingToken},
		{name: "garbage", header: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "missing subject", header: noSubject, wantErr: ErrInvalidToken},
		{name: "verifies with secret", secret: "some-key", header: valid, want: "user-1"},
		{name: "rejects wrong secret", secret: "other-key", header: valid, wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewResolver(tt.secret).Subject(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected subject %s, got %s", tt.want, got)
			}
		})
	}
}
