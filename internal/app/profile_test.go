package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
)

func strPtr(value string) *string { return &value }

func TestApplyProfile(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		req     domain.ProfileRequest
		wantErr bool
		check   func(t *testing.T, p *domain.UserProfile)
	}{
		{
			name: "sets fields",
			req: domain.ProfileRequest{
				FullName:          strPtr("  Ada Obi "),
				DateOfBirth:       strPtr("1990-04-12"),
				ProfilePictureURL: strPtr("https://cdn.example.com/a.png"),
				PrivacySetting:    strPtr("Contacts"),
			},
			check: func(t *testing.T, p *domain.UserProfile) {
				if p.FullName != "Ada Obi" || p.PrivacySetting != domain.PrivacyContacts {
					t.Fatalf("unexpected profile: %+v", p)
				}
				if p.DateOfBirth == nil || p.DateOfBirth.Year() != 1990 {
					t.Fatalf("unexpected date of birth: %v", p.DateOfBirth)
				}
			},
		},
		{
			name: "empty string clears address",
			req:  domain.ProfileRequest{Address: strPtr("")},
			check: func(t *testing.T, p *domain.UserProfile) {
				if p.Address != nil {
					t.Fatalf("expected address cleared, got %q", *p.Address)
				}
			},
		},
		{name: "future birth date", req: domain.ProfileRequest{DateOfBirth: strPtr("2030-01-01")}, wantErr: true},
		{name: "bad date layout", req: domain.ProfileRequest{DateOfBirth: strPtr("12/04/1990")}, wantErr: true},
		{name: "non http url", req: domain.ProfileRequest{ProfilePictureURL: strPtr("ftp://example.com/a.png")}, wantErr: true},
		{name: "unknown privacy", req: domain.ProfileRequest{PrivacySetting: strPtr("friends")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := &domain.UserProfile{FullName: "Existing", Address: strPtr("1 Marina"), PrivacySetting: domain.PrivacyPrivate}
			err := applyProfile(profile, tt.req, now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProfile) {
					t.Fatalf("expected ErrInvalidProfile, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, profile)
		})
	}
}

func TestCreateAndUpdateProfile(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo)
	userID := uuid.New()

	if _, err := svc.CreateProfile(context.Background(), userID, domain.ProfileRequest{Address: strPtr("1 Marina")}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected full name to be required, got %v", err)
	}

	created, err := svc.CreateProfile(context.Background(), userID, domain.ProfileRequest{FullName: strPtr("Ada Obi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.PrivacySetting != domain.PrivacyPrivate {
		t.Fatalf("expected private by default, got %s", created.PrivacySetting)
	}

	updated, err := svc.UpdateProfile(context.Background(), userID, domain.ProfileRequest{PrivacySetting: strPtr("public")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.FullName != "Ada Obi" || updated.PrivacySetting != domain.PrivacyPublic {
		t.Fatalf("expected partial update, got %+v", updated)
	}

	if _, err := svc.UpdateProfile(context.Background(), userID, domain.ProfileRequest{FullName: strPtr(" ")}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected blank full name to be rejected, got %v", err)
	}
}
