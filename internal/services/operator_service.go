package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/repository"
	"github.com/fleetdesk/console/internal/store"
	jwtutil "github.com/fleetdesk/console/pkg/jwt"
	"github.com/fleetdesk/console/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// OperatorService handles operator accounts and login.
type OperatorService struct {
	repo      *repository.OperatorRepository
	jwtSecret string
	tokenTTL  time.Duration
}

// NewOperatorService creates a new instance of OperatorService.
func NewOperatorService(repo *repository.OperatorRepository, jwtSecret string, tokenTTL time.Duration) *OperatorService {
	return &OperatorService{repo: repo, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Register creates an operator with a bcrypt-hashed password.
func (s *OperatorService) Register(ctx context.Context, email, name, role, fleetID, password string) (*models.Operator, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if role != models.RoleAdmin && role != models.RoleViewer {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if _, err := s.repo.GetOperatorByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("operator %s already exists", email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.CreateOperator(ctx, &models.Operator{
		Email:          email,
		Name:           name,
		Role:           role,
		FleetID:        fleetID,
		HashedPassword: string(hash),
	})
}

// Login checks credentials and returns a signed token.
func (s *OperatorService) Login(ctx context.Context, email, password string) (string, *models.Operator, error) {
	op, err := s.repo.GetOperatorByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.HashedPassword), []byte(password)); err != nil {
		logger.Log.WithField("operator_id", op.ID).Warn("Login failed: wrong password")
		return "", nil, ErrInvalidCredentials
	}

	token, err := jwtutil.GenerateToken(op.ID, op.Name, op.Role, op.CreatedAt, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	logger.Log.WithField("operator_id", op.ID).Info("Operator logged in")
	return token, op, nil
}

// UpdateLastActive records operator activity.
func (s *OperatorService) UpdateLastActive(ctx context.Context, operatorID string) error {
	return s.repo.UpdateLastActive(ctx, operatorID, time.Now())
}

// EnsureAdmin creates an admin operator unless one with email already exists.
func (s *OperatorService) EnsureAdmin(ctx context.Context, email, password string) error {
	_, err := s.repo.GetOperatorByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = s.Register(ctx, email, "Administrator", models.RoleAdmin, "", password)
	return err
}
