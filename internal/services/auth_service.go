package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicpulse/backend/internal/models"
)

// AuthService owns accounts. Every entry point consults the banned-email
// list before touching an account.
type AuthService struct {
	users    UserStore
	verifier HumanVerifier
	now      func() time.Time
	newID    func() string
}

// NewAuthService creates the service. verifier may be nil to skip the
// registration challenge.
func NewAuthService(users UserStore, verifier HumanVerifier) *AuthService {
	return &AuthService{
		users:    users,
		verifier: verifier,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *AuthService) checkNotBanned(ctx context.Context, email string) error {
	banned, err := s.users.IsEmailBanned(ctx, email)
	if err != nil {
		return fmt.Errorf("auth: banned lookup: %w", err)
	}
	if banned {
		return ErrEmailBanned
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest, remoteIP string) (*models.User, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	email := models.NormalizeEmail(req.Email)

	if err := s.checkNotBanned(ctx, email); err != nil {
		log.Printf("[Register] refused email=%s err=%v", email, err)
		return nil, err
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, req.RecaptchaToken, remoteIP); err != nil {
			return nil, err
		}
	}

	return s.create(ctx, strings.TrimSpace(req.Name), email, req.Password, models.RoleUser)
}

// CreateAdmin seeds an administrator account. Banned emails cannot be used.
func (s *AuthService) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	req := models.RegisterRequest{Name: name, Email: email, Password: password}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	email = models.NormalizeEmail(email)
	if err := s.checkNotBanned(ctx, email); err != nil {
		return nil, err
	}
	return s.create(ctx, strings.TrimSpace(name), email, password, models.RoleAdmin)
}

func (s *AuthService) create(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         role,
		TrustScore:   models.InitialTrustScore,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	email := models.NormalizeEmail(req.Email)

	if err := s.checkNotBanned(ctx, email); err != nil {
		log.Printf("[Login] refused email=%s err=%v", email, err)
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

// TrustState is what the submitter sees about their own standing.
func (s *AuthService) TrustState(ctx context.Context, id string) (models.TrustState, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return models.TrustState{}, err
	}
	return models.TrustStateOf(u), nil
}

func (s *AuthService) IsEmailBanned(ctx context.Context, email string) (bool, error) {
	return s.users.IsEmailBanned(ctx, email)
}

func (s *AuthService) ListBannedEmails(ctx context.Context) ([]models.BannedEmail, error) {
	return s.users.ListBannedEmails(ctx)
}
