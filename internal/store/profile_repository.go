package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const profileColumns = `
	user_id, full_name, date_of_birth, address, profile_picture_url,
	privacy_setting, created_at, updated_at
`

func scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := row.Scan(
		&profile.UserID,
		&profile.FullName,
		&profile.DateOfBirth,
		&profile.Address,
		&profile.ProfilePictureURL,
		&profile.PrivacySetting,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// CreateProfile inserts the user's profile; a second insert returns ErrProfileExists.
func (r *PostgresRepository) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO user_profiles (user_id, full_name, date_of_birth, address, profile_picture_url, privacy_setting)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`,
		profile.UserID,
		profile.FullName,
		profile.DateOfBirth,
		profile.Address,
		profile.ProfilePictureURL,
		profile.PrivacySetting,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists
		}
		return err
	}
	return nil
}

// FindProfileByUserID retrieves the user's profile.
func (r *PostgresRepository) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID))
}

// UpdateProfile overwrites every editable column with the values in profile.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, profile *domain.UserProfile) error {
	err := r.db.QueryRow(ctx, `
		UPDATE user_profiles
		SET full_name = $2,
			date_of_birth = $3,
			address = $4,
			profile_picture_url = $5,
			privacy_setting = $6,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING created_at, updated_at
	`,
		profile.UserID,
		profile.FullName,
		profile.DateOfBirth,
		profile.Address,
		profile.ProfilePictureURL,
		profile.PrivacySetting,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		return err
	}
	return nil
}
