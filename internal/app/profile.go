package app

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
)

const profileDateLayout = "2006-01-02"

// CreateProfile stores the user's profile. Privacy defaults to private.
func (s *Service) CreateProfile(ctx context.Context, userID uuid.UUID, req domain.ProfileRequest) (*domain.UserProfile, error) {
	profile := &domain.UserProfile{
		UserID:         userID,
		PrivacySetting: domain.PrivacyPrivate,
	}
	if err := applyProfile(profile, req, s.now()); err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.FullName) == "" {
		return nil, ErrInvalidProfile
	}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateProfile applies only the fields present in req.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.ProfileRequest) (*domain.UserProfile, error) {
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := applyProfile(profile, req, s.now()); err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.FullName) == "" {
		return nil, ErrInvalidProfile
	}
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfile returns the user's profile.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	return s.repo.FindProfileByUserID(ctx, userID)
}

// applyProfile copies the set fields of req onto profile. An empty string clears
// an optional field.
func applyProfile(profile *domain.UserProfile, req domain.ProfileRequest, now time.Time) error {
	if req.FullName != nil {
		profile.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.DateOfBirth != nil {
		value := strings.TrimSpace(*req.DateOfBirth)
		if value == "" {
			profile.DateOfBirth = nil
		} else {
			dob, err := time.Parse(profileDateLayout, value)
			if err != nil || dob.After(now) {
				return ErrInvalidProfile
			}
			profile.DateOfBirth = &dob
		}
	}
	if req.Address != nil {
		profile.Address = stringPtr(strings.TrimSpace(*req.Address))
	}
	if req.ProfilePictureURL != nil {
		value := strings.TrimSpace(*req.ProfilePictureURL)
		if value != "" {
			parsed, err := url.ParseRequestURI(value)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				return ErrInvalidProfile
			}
		}
		profile.ProfilePictureURL = stringPtr(value)
	}
	if req.PrivacySetting != nil {
		setting := strings.ToLower(strings.TrimSpace(*req.PrivacySetting))
		switch setting {
		case domain.PrivacyPublic, domain.PrivacyContacts, domain.PrivacyPrivate:
			profile.PrivacySetting = setting
		default:
			return ErrInvalidProfile
		}
	}
	return nil
}
