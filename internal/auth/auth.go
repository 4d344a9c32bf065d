package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/vivenzalife/vivenza/internal/apperr"
)

type Service struct {
	db        *sqlx.DB
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller as seen by every service.
type Identity struct {
	UserID string  `json:"id" db:"id"`
	Name   string  `json:"name" db:"name"`
	Email  string  `json:"email" db:"email"`
	Image  *string `json:"image,omitempty" db:"image"`
}

func New(db *sqlx.DB, jwtSecret string) *Service {
	return NewWithTokenTTL(db, jwtSecret, 24*time.Hour)
}

func NewWithTokenTTL(db *sqlx.DB, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	return &Service{
		db:        db,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

func validateName(name string) error {
	if name == "" {
		return apperr.NewInvalid("name is required")
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 64 {
		return apperr.NewInvalid("name must be between 2 and 64 characters")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, name, email, password string) (string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateName(name); err != nil {
		return "", err
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", apperr.NewInvalid("invalid email")
	}
	if len(password) < 6 {
		return "", apperr.NewInvalid("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, email, string(hash), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", apperr.NewInvalid("email already registered")
		}
		return "", apperr.Store("failed to register user", err)
	}

	return id, nil
}

// Login checks the credentials and returns a signed token plus the user id.
func (s *Service) Login(ctx context.Context, email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var row struct {
		ID           string `db:"id"`
		PasswordHash string `db:"password_hash"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT id, password_hash FROM users WHERE email = ?`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", apperr.New(apperr.Unauthorized, "invalid email or password")
		}
		return "", "", apperr.Store("failed to query user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return "", "", apperr.New(apperr.Unauthorized, "invalid email or password")
	}

	token, err := s.GenerateToken(row.ID, email)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}

	return token, row.ID, nil
}

func (s *Service) GenerateToken(userID, email string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// Identity loads the caller behind a validated token. A user deleted after
// the token was issued yields Unauthorized.
func (s *Service) Identity(ctx context.Context, userID string) (*Identity, error) {
	var identity Identity
	err := s.db.GetContext(ctx, &identity, `SELECT id, name, email, image FROM users WHERE id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.Unauthorized, "user not found")
		}
		return nil, apperr.Store("failed to validate user", err)
	}
	return &identity, nil
}

// UserExists checks if a user with the given ID exists
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID)
	if err != nil {
		return false, apperr.Store("failed to query user", err)
	}
	return exists, nil
}

// UpdateProfile changes the display name and, when image is non-nil, the
// profile picture URL.
func (s *Service) UpdateProfile(ctx context.Context, callerID, name string, image *string) (*Identity, error) {
	if err := RequireCaller(callerID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var (
		res sql.Result
		err error
	)
	if image != nil {
		res, err = s.db.ExecContext(ctx, `UPDATE users SET name = ?, image = ?, updated_at = ? WHERE id = ?`, name, *image, now, callerID)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE users SET name = ?, updated_at = ? WHERE id = ?`, name, now, callerID)
	}
	if err != nil {
		return nil, apperr.Store("failed to update profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NewNotFound("user not found")
	}

	return s.Identity(ctx, callerID)
}
