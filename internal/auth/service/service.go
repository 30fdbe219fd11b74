package service

import (
	"context"
	"time"

	"assessportal/internal/auth/password"
	"assessportal/internal/auth/repository"
	"assessportal/internal/auth/transport"
	"assessportal/platform/apperr"
	"assessportal/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// Service implements authentication and account provisioning.
type Service struct {
	repo *repository.Repository
	cfg  config.AuthServiceConfig
}

// New creates a new auth service
func New(repo *repository.Repository, cfg config.AuthServiceConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// SignIn verifies credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, req transport.SignInRequest) (*transport.SignInResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		// Not-found collapses into the same error as a bad password.
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if !user.Active {
		return nil, apperr.Unauthorized("account disabled")
	}
	if err := password.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	expiresAt := time.Now().Add(s.cfg.GetAccessTokenTTL())
	token, err := s.signJWT(user.ID, user.Role, expiresAt)
	if err != nil {
		return nil, err
	}

	return &transport.SignInResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        toUserResponse(user),
	}, nil
}

// CreateUser provisions an account. Caller authorization is route-level.
func (s *Service) CreateUser(ctx context.Context, req transport.CreateUserRequest) (*transport.UserResponse, error) {
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &repository.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

// GetUser returns the public view of one account.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*transport.UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ListByRole returns active users holding a role, for assignment pickers.
func (s *Service) ListByRole(ctx context.Context, role string) ([]transport.UserResponse, error) {
	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]transport.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	return out, nil
}

// Deactivate disables an account without deleting its history.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

func (s *Service) signJWT(userID uuid.UUID, role string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"type": accessTokenType,
		"role": role,
		"exp":  expiresAt.Unix(),
		"iat":  time.Now().Unix(),
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenObj.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
}

func toUserResponse(u *repository.User) transport.UserResponse {
	return transport.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}
