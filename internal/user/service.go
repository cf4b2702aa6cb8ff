package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/cropcarry/marketplace/internal/notification"
)

const otpValidity = 10 * time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOTP         = errors.New("invalid verification code")
	ErrOTPExpired         = errors.New("verification code has expired")
	ErrInvalidRole        = errors.New("invalid role")
)

type Service interface {
	SignUp(ctx context.Context, email, password string, role Role, name string) (*User, error)
	// Login verifies credentials. For an unverified account it re-issues an
	// OTP and returns the user with IsVerified false; the caller routes the
	// user to verification instead of logging them in.
	Login(ctx context.Context, email, password string) (*User, error)
	VerifyOTP(ctx context.Context, userID uuid.UUID, code string) error
	ResendOTP(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, phone, address string) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

type service struct {
	repo     Repository
	notifier notification.Notifier
}

func NewService(repo Repository, notifier notification.Notifier) Service {
	return &service{repo: repo, notifier: notifier}
}

func (s *service) SignUp(ctx context.Context, email, password string, role Role, name string) (*User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if password == "" {
		return nil, errors.New("service: password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return nil, fmt.Errorf("service: failed to hash password: %w", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsVerified:   false,
		Name:         name,
	}

	if _, err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("service: failed to create user: %w", err)
	}

	if err := s.issueOTP(ctx, u); err != nil {
		// The account exists; the user can request a resend.
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("service: failed to issue signup OTP")
	}

	log.Info().Stringer("user_id", u.ID).Str("role", u.Role.String()).Msg("service: user signed up")
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("service: failed to fetch user by email")
		return nil, fmt.Errorf("service: failed to fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !u.IsVerified {
		if err := s.issueOTP(ctx, u); err != nil {
			log.Error().Err(err).Stringer("user_id", u.ID).Msg("service: failed to issue login OTP")
		}
	}

	return u, nil
}

func (s *service) VerifyOTP(ctx context.Context, userID uuid.UUID, code string) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to fetch user for verification: %w", err)
	}

	if u.OTPCode == nil || code == "" || *u.OTPCode != code {
		return ErrInvalidOTP
	}
	if u.OTPExpiry == nil || time.Now().UTC().After(u.OTPExpiry.UTC()) {
		return ErrOTPExpired
	}

	if err := s.repo.MarkVerified(ctx, userID); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to mark user verified")
		return fmt.Errorf("service: failed to mark user verified: %w", err)
	}

	log.Info().Stringer("user_id", userID).Msg("service: user verified")
	return nil
}

func (s *service) ResendOTP(ctx context.Context, userID uuid.UUID) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to fetch user for OTP resend: %w", err)
	}
	return s.issueOTP(ctx, u)
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if newPassword == "" {
		return errors.New("service: password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return fmt.Errorf("service: failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to update password")
		return fmt.Errorf("service: failed to update password: %w", err)
	}
	return nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, phone, address string) error {
	if err := s.repo.UpdateProfile(ctx, userID, phone, address); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to update profile")
		return fmt.Errorf("service: failed to update profile: %w", err)
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to fetch user by id")
		return nil, fmt.Errorf("service: failed to fetch user by id: %w", err)
	}
	return u, nil
}

// issueOTP stores a fresh code with its expiry and mails it to the user.
// The mail itself is fire-and-forget.
func (s *service) issueOTP(ctx context.Context, u *User) error {
	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("service: failed to generate OTP: %w", err)
	}

	expiry := time.Now().UTC().Add(otpValidity)
	if err := s.repo.SetOTP(ctx, u.ID, code, expiry); err != nil {
		return fmt.Errorf("service: failed to store OTP: %w", err)
	}

	notification.Dispatch(s.notifier, notification.KindOTP, u.Email, notification.OTPPayload(code))
	return nil
}

func generateOTP() (string, error) {
	digits := make([]byte, 6)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
