package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpPeriodSeconds = 30
	otpSkewSteps     = 1
	minPasswordLen   = 8
	loginRateWindow  = time.Minute
	loginRateScope   = "login"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

var otpValidateOpts = totp.ValidateOpts{
	Period:    otpPeriodSeconds,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}
	var hasLower, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a pending user with a wallet and returns the TOTP provisioning URI.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	email := normalizeEmail(req.Email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.otpIssuer,
		AccountName: email,
		Period:      otpPeriodSeconds,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp secret: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		OTPSecret:    key.Secret(),
		Status:       domain.UserStatusPending,
	}
	events := []domain.OutboxEvent{
		s.event(domain.RoutingKeyUserRegistered, domain.UserEvent{
			UserID:     user.ID,
			Email:      user.Email,
			Status:     user.Status,
			OccurredAt: s.now(),
		}),
	}
	if err := s.repo.CreateUserWithWallet(ctx, user, s.currency, events); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("endpoint", "register"), zap.String("outcome", "created"), logUser(user.ID))
	return &domain.RegisterResponse{
		UserID:             user.ID,
		Email:              user.Email,
		Status:             user.Status,
		OTPProvisioningURI: key.URL(),
		Message:            "User registered successfully. Verify the OTP from your authenticator app to activate the account.",
	}, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckRateLimit(ctx, loginRateScope, email, s.loginRateLimit, loginRateWindow); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return nil, ErrUserNotActive
	}

	token, expiresIn, err := s.issueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

func (s *Service) issueAccessToken(userID uuid.UUID) (string, int64, error) {
	if len(s.jwtSecret) == 0 {
		return "", 0, errors.New("jwt secret is not configured")
	}
	ttl := s.accessTokenTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, int64(ttl.Seconds()), nil
}

// ParseAccessToken validates an HS256 token and returns its subject.
func (s *Service) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// VerifyOTP activates a pending user. A code is accepted once: its time step must
// be newer than the last accepted step, and the activation is a conditional update.
func (s *Service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) error {
	email := normalizeEmail(req.Email)
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrInvalidUserStatus
		}
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user.Status != domain.UserStatusPending {
		return ErrInvalidUserStatus
	}

	now := s.now()
	if user.OTPLockedUntil != nil && now.Before(*user.OTPLockedUntil) {
		return &OTPLockedError{Until: *user.OTPLockedUntil}
	}

	step, ok := matchTOTPStep(user.OTPSecret, strings.TrimSpace(req.OTP), now)
	if !ok || (user.OTPLastStep != nil && step <= *user.OTPLastStep) {
		return s.recordOTPFailure(ctx, user.ID, now)
	}

	events := []domain.OutboxEvent{
		s.event(domain.RoutingKeyUserActivated, domain.UserEvent{
			UserID:     user.ID,
			Email:      user.Email,
			Status:     domain.UserStatusActive,
			OccurredAt: now,
		}),
	}
	if err := s.repo.ActivateUser(ctx, user.ID, step, events); err != nil {
		if errors.Is(err, store.ErrOTPAlreadyUsed) {
			s.logger.Warn("otp replay rejected", zap.String("endpoint", "verify_otp"), zap.String("outcome", "reject"), zap.String("reason", "step_already_used"), logUser(user.ID))
			return ErrInvalidOTP
		}
		return fmt.Errorf("failed to activate user: %w", err)
	}

	s.logger.Info("user activated", zap.String("endpoint", "verify_otp"), zap.String("outcome", "activated"), logUser(user.ID))
	return nil
}

func (s *Service) recordOTPFailure(ctx context.Context, userID uuid.UUID, now time.Time) error {
	attempts, lockedUntil, err := s.repo.RecordFailedOTPAttempt(ctx, userID, s.otpMaxAttempts, s.otpLockoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to record otp attempt: %w", err)
	}
	s.logger.Warn("otp verification failed",
		zap.String("endpoint", "verify_otp"),
		zap.String("outcome", "reject"),
		zap.String("reason", "invalid_code"),
		logUser(userID),
		zap.Int("attempts", attempts),
	)
	if lockedUntil != nil && now.Before(*lockedUntil) {
		return &OTPLockedError{Until: *lockedUntil}
	}
	return ErrInvalidOTP
}

// matchTOTPStep returns the time step within the allowed skew whose code equals code.
func matchTOTPStep(secret, code string, now time.Time) (int64, bool) {
	if len(code) != int(otp.DigitsSix) || secret == "" {
		return 0, false
	}
	current := now.Unix() / otpPeriodSeconds
	for offset := int64(-otpSkewSteps); offset <= otpSkewSteps; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*otpPeriodSeconds, 0).UTC(), otpValidateOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}
