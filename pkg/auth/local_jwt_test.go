package auth

import (
	"errors"
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ExtractToken(%q) = %q, %v", tt.header, got, err)
			}
		})
	}
}

func TestIdentityVerifier_RoundTrip(t *testing.T) {
	v, err := NewIdentityVerifier("secret", "teamup-idp")
	if err != nil {
		t.Fatal(err)
	}
	in := Identity{UserID: "u1", Name: "Ada", Username: "ada", Email: "ada@example.com", Picture: "https://img/ada"}

	token, err := v.Issue(in)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if *got != in {
		t.Errorf("Expected %+v, got %+v", in, *got)
	}
}

func TestIdentityVerifier_Rejects(t *testing.T) {
	v, _ := NewIdentityVerifier("secret", "teamup-idp")
	other, _ := NewIdentityVerifier("other-secret", "teamup-idp")
	wrongIssuer, _ := NewIdentityVerifier("secret", "someone-else")
	expired, _ := NewIdentityVerifier("secret", "teamup-idp")
	expired.Expiry = -time.Minute

	forged, _ := other.Issue(Identity{UserID: "u1"})
	foreign, _ := wrongIssuer.Issue(Identity{UserID: "u1"})
	stale, _ := expired.Issue(Identity{UserID: "u1"})
	anonymous, _ := v.Issue(Identity{})

	tests := map[string]string{
		"garbage":       "not.a.token",
		"bad signature": forged,
		"wrong issuer":  foreign,
		"expired":       stale,
		"no subject":    anonymous,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewIdentityVerifier_EmptySecret(t *testing.T) {
	if _, err := NewIdentityVerifier("", ""); err == nil {
		t.Error("Expected error for empty secret")
	}
}
