package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iho/bankledger/internal/domain"
)

// TokenIssuer issues access tokens for authenticated users.
type TokenIssuer interface {
	Generate(user *domain.User) (string, error)
}

// UserUseCase handles registration and login of API users
type UserUseCase struct {
	userRepo UserRepository
	idGen    IDGenerator
	tokens   TokenIssuer
	cost     int
}

// NewUserUseCase creates a new user use case
func NewUserUseCase(userRepo UserRepository, idGen IDGenerator, tokens TokenIssuer) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		idGen:    idGen,
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (uc *UserUseCase) WithHashCost(cost int) *UserUseCase {
	uc.cost = cost
	return uc
}

// RegisterInput represents input for registering a user
type RegisterInput struct {
	Username string
	Password string
	Role     domain.Role
	// RequestedBy is the role of the authenticated caller, empty for
	// anonymous registration.
	RequestedBy domain.Role
}

// Register creates a new user with a hashed password. Role defaults to teller.
// Only an admin may create admin or auditor users.
func (uc *UserUseCase) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)

	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RoleTeller
	}
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if role != domain.RoleTeller && input.RequestedBy != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only an admin may create %s users", domain.ErrInsufficientRole, role)
	}

	existing, err := uc.userRepo.GetByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, domain.ErrUserExists
	}
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), uc.cost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:             uc.idGen.Generate(),
		Username:       username,
		HashedPassword: string(hashedPassword),
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	user.HashedPassword = ""
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account unless the username is
// already taken. It reports whether a user was created.
func (uc *UserUseCase) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := uc.Register(ctx, RegisterInput{
		Username:    username,
		Password:    password,
		Role:        domain.RoleAdmin,
		RequestedBy: domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoginInput represents login credentials
type LoginInput struct {
	Username string
	Password string
}

// Login verifies credentials and returns a signed token.
func (uc *UserUseCase) Login(ctx context.Context, input LoginInput) (string, error) {
	user, err := uc.userRepo.GetByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(input.Password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	return uc.tokens.Generate(user)
}
