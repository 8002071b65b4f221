// Package auth registers users, checks credentials and issues the HS256
// tokens that authenticate API calls.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/karimd18/project-C-case-study/config"
	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/store"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	minPasswordLength = 8
)

// Claims are the token claims. The user id travels as "userId" and the
// email as "upn".
type Claims struct {
	UserID string   `json:"userId"`
	Email  string   `json:"upn"`
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Service implements registration, login and token verification.
type Service struct {
	users    store.UserStore
	secret   []byte
	issuer   string
	ttl      time.Duration
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	seedEmail    string
	seedPassword string
}

// NewService creates a Service. The signing secret must be set.
func NewService(cfg config.AuthConfig, users store.UserStore, logger *zap.Logger) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	if users == nil {
		return nil, fmt.Errorf("auth: user store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:        users,
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		ttl:          ttl,
		logger:       logger,
		validate:     validator.New(),
		now:          time.Now,
		seedEmail:    cfg.SeedAdminEmail,
		seedPassword: cfg.SeedAdminPassword,
	}, nil
}

func (s *Service) checkCredentials(email, password string) error {
	details := map[string]interface{}{}
	if err := s.validate.Var(email, "required,email"); err != nil {
		details["email"] = "a valid email address is required"
	}
	if err := s.validate.Var(password, fmt.Sprintf("required,min=%d", minPasswordLength)); err != nil {
		details["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	}
	if len(details) > 0 {
		return errors.NewValidationError("", "Invalid registration", details)
	}
	return nil
}

// Register creates a USER account and returns a token for it. A taken
// email wraps errors.ErrConflict.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	return s.register(ctx, email, password, RoleUser)
}

func (s *Service) register(ctx context.Context, email, password, role string) (string, error) {
	email = strings.TrimSpace(email)
	if err := s.checkCredentials(email, password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Settings:     map[string]string{"theme": "light"},
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return "", fmt.Errorf("%w: user already exists", errors.ErrConflict)
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", role))
	return s.issue(user)
}

// Login checks the credentials and returns a fresh token. Unknown emails
// and wrong passwords both wrap errors.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", fmt.Errorf("%w: Invalid credentials", errors.ErrUnauthorized)
	}
	return s.issue(user)
}

func (s *Service) issue(user *store.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Groups: []string{user.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token. Any problem wraps
// errors.ErrUnauthorized.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user id", errors.ErrUnauthorized)
	}
	return claims, nil
}

// User returns the account for a verified token's user id.
func (s *Service) User(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", errors.ErrNotFound, userID)
	}
	return user, nil
}

// SeedAdmin creates the configured admin account. An existing account is
// not an error. It does nothing when no admin email is configured.
func (s *Service) SeedAdmin(ctx context.Context) error {
	if s.seedEmail == "" {
		return nil
	}
	_, err := s.register(ctx, s.seedEmail, s.seedPassword, RoleAdmin)
	switch {
	case err == nil:
		s.logger.Info("seed admin created", zap.String("email", s.seedEmail))
		return nil
	case errors.Is(err, errors.ErrConflict):
		s.logger.Info("seed admin already exists", zap.String("email", s.seedEmail))
		return nil
	default:
		return fmt.Errorf("seed admin: %w", err)
	}
}
