package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/db/dbtest"
)

func TestRegisterValidation(t *testing.T) {
	svc := New(dbtest.Open(t), "test-jwt-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ana Souza", "ana@example.com", "password123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{"duplicate email", "Ana Clara", "ANA@example.com", "password123"},
		{"short name", "A", "a@example.com", "password123"},
		{"bad email", "Bruno", "not-an-email", "password123"},
		{"display form email", "Bruno", "Bruno <b@example.com>", "password123"},
		{"short password", "Bruno", "bruno@example.com", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.userName, tt.email, tt.password)
			assert.True(t, apperr.Is(err, apperr.InvalidArgument), "got %v", err)
		})
	}
}

func TestLoginAndIdentity(t *testing.T) {
	svc := New(dbtest.Open(t), "test-jwt-secret")
	ctx := context.Background()

	userID, err := svc.Register(ctx, "Carla", "carla@example.com", "password123")
	require.NoError(t, err)

	token, loggedInID, err := svc.Login(ctx, " Carla@Example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, userID, loggedInID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	identity, err := svc.Identity(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Carla", identity.Name)
	assert.Equal(t, "carla@example.com", identity.Email)
	assert.Nil(t, identity.Image)

	_, _, err = svc.Login(ctx, "carla@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	_, _, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	_, err = svc.Identity(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestValidateTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := New(dbtest.Open(t), "test-jwt-secret")

	other := New(nil, "another-secret")
	foreign, err := other.GenerateToken("u1", "u1@example.com")
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := svc.GenerateToken("u1", "u1@example.com")
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	conn := dbtest.Open(t)
	svc := New(conn, "test-jwt-secret")
	ctx := context.Background()

	userID := dbtest.CreateUser(t, conn, "Davi")

	_, err := svc.UpdateProfile(ctx, "", "Davi Lima", nil)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	_, err = svc.UpdateProfile(ctx, userID, "  ", nil)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	image := "/api/files/davi.png"
	identity, err := svc.UpdateProfile(ctx, userID, "Davi Lima", &image)
	require.NoError(t, err)
	assert.Equal(t, "Davi Lima", identity.Name)
	require.NotNil(t, identity.Image)
	assert.Equal(t, image, *identity.Image)

	// nil image keeps the current picture
	identity, err = svc.UpdateProfile(ctx, userID, "Davi", nil)
	require.NoError(t, err)
	require.NotNil(t, identity.Image)
	assert.Equal(t, image, *identity.Image)
}

func TestGuard(t *testing.T) {
	assert.True(t, apperr.Is(RequireCaller(""), apperr.Unauthorized))
	assert.NoError(t, RequireCaller("u1"))
	assert.False(t, HasCaller(""))
	assert.True(t, HasCaller("u1"))
}
