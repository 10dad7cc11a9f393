package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// MaxPasswordLength is the longest password in bytes that bcrypt can hash.
const MaxPasswordLength = 72

// ValidationError describes rejected registration input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid admin %s: %s", e.Field, e.Reason)
}

// Claims are carried by admin tokens.
type Claims struct {
	AdminID int64  `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed admin session.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Config configures token issuance.
type Config struct {
	Secret []byte
	TTL    time.Duration
	// HashCost overrides the bcrypt cost; zero uses bcrypt.DefaultCost.
	HashCost int
}

// Service registers administrators and issues HS256 tokens.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates a Service. The secret must not be empty.
func NewService(repo Repository, cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}, nil
}

// Register creates an administrator with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (*Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if len(password) < MinPasswordLength {
		return nil, &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if len(password) > MaxPasswordLength {
		return nil, &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.HashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	a := &Admin{Email: email, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrAdminExists) {
			return nil, ErrAdminExists
		}
		return nil, errors.Wrap(err, "create admin")
	}
	return a, nil
}

// Login checks the credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find admin")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(a)
}

func (s *Service) issue(a *Admin) (*Token, error) {
	now := s.now()
	expires := now.Add(s.cfg.TTL)
	claims := Claims{
		AdminID: a.ID,
		Email:   a.Email,
		Role:    RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(a.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}
	return &Token{Value: signed, ExpiresAt: expires}, nil
}

// Verify parses and validates an admin token.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
