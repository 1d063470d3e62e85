package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/memstore"
	"github.com/srinumudili/CodeMate/internal/user"
)

const strongPassword = "Sup3r$ecret"

func newService(opts user.Options) (*user.Service, *memstore.Store) {
	store := memstore.New()
	if opts.Secret == "" {
		opts.Secret = "unit-test-secret"
	}
	opts.HashCost = bcrypt.MinCost
	return user.NewService(store, opts), store
}

func signup(t *testing.T, s *user.Service, email string) *user.AuthResponse {
	t.Helper()
	res, err := s.Register(context.Background(), &user.SignupRequest{
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     email,
		Password:  strongPassword,
	})
	require.NoError(t, err)
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newService(user.Options{Issuer: "codemate"})
	ctx := context.Background()

	res := signup(t, s, "  Alice@Example.COM ")
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, user.DefaultAbout, res.User.About)
	assert.NotEqual(t, strongPassword, res.User.Password)

	id, err := s.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id)

	login, err := s.Login(ctx, &user.LoginRequest{Email: "ALICE@example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = s.Login(ctx, &user.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCreds)
	_, err = s.Login(ctx, &user.LoginRequest{Email: "nobody@example.com", Password: strongPassword})
	assert.ErrorIs(t, err, apperr.ErrInvalidCreds)
	_, err = s.Login(ctx, &user.LoginRequest{Email: "not-an-email", Password: strongPassword})
	assert.ErrorIs(t, err, apperr.ErrInvalidCreds)
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newService(user.Options{})
	ctx := context.Background()

	cases := map[string]user.SignupRequest{
		"Please enter a strong password": {FirstName: "Alice", LastName: "L", Email: "a@example.com", Password: "weakpass"},
		"Email is not valid":             {FirstName: "Alice", LastName: "L", Email: "nope", Password: strongPassword},
		"firstName must be at least 4":   {FirstName: "Al", LastName: "L", Email: "a@example.com", Password: strongPassword},
		"lastName is required":           {FirstName: "Alice", Email: "a@example.com", Password: strongPassword},
	}
	for want, req := range cases {
		_, err := s.Register(ctx, &req)
		require.Error(t, err, want)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), want)
		assert.Equal(t, want, err.Error())
	}

	signup(t, s, "dup@example.com")
	_, err := s.Register(ctx, &user.SignupRequest{FirstName: "Alice", LastName: "L", Email: "DUP@example.com", Password: strongPassword})
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
}

func TestValidateTokenReasons(t *testing.T) {
	s, _ := newService(user.Options{Secret: "right"})
	expired, _ := newService(user.Options{Secret: "right", TTL: -time.Minute})
	forged, _ := newService(user.Options{Secret: "wrong"})
	id := uuid.New()

	tok, err := expired.IssueToken(id)
	require.NoError(t, err)
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)

	tok, err = forged.IssueToken(id)
	require.NoError(t, err)
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	_, err = s.ValidateToken("garbage")
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	tok, err = s.IssueToken(id)
	require.NoError(t, err)
	got, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestValidateTokenChecksIssuer(t *testing.T) {
	s, _ := newService(user.Options{Secret: "right", Issuer: "codemate"})
	other, _ := newService(user.Options{Secret: "right", Issuer: "someone-else"})

	tok, err := other.IssueToken(uuid.New())
	require.NoError(t, err)
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestEditProfile(t *testing.T) {
	s, _ := newService(user.Options{})
	ctx := context.Background()
	u := signup(t, s, "alice@example.com").User

	about := "Gopher"
	age := 30
	gender := "Female"
	skills := []string{"go", "postgres"}
	got, err := s.EditProfile(ctx, u.ID, &user.EditProfileRequest{About: &about, Age: &age, Gender: &gender, Skills: &skills})
	require.NoError(t, err)
	assert.Equal(t, "Gopher", got.About)
	assert.Equal(t, 30, *got.Age)
	assert.Equal(t, "female", *got.Gender)
	assert.Equal(t, user.StringList{"go", "postgres"}, got.Skills)
	assert.Equal(t, "Alice", got.FirstName)

	young := 12
	_, err = s.EditProfile(ctx, u.ID, &user.EditProfileRequest{Age: &young})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	bad := "robot"
	_, err = s.EditProfile(ctx, u.ID, &user.EditProfileRequest{Gender: &bad})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	padded := " OTHERS "
	got, err = s.EditProfile(ctx, u.ID, &user.EditProfileRequest{Gender: &padded})
	require.NoError(t, err)
	assert.Equal(t, "others", *got.Gender)

	// The password hash survives a profile edit.
	_, err = s.Login(ctx, &user.LoginRequest{Email: "alice@example.com", Password: strongPassword})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	s, _ := newService(user.Options{})
	ctx := context.Background()
	u := signup(t, s, "alice@example.com").User

	err := s.ChangePassword(ctx, u.ID, &user.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "N3w$ecret!"})
	assert.EqualError(t, err, "Password is incorrect.")

	err = s.ChangePassword(ctx, u.ID, &user.ChangePasswordRequest{CurrentPassword: strongPassword, NewPassword: "weak"})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	err = s.ChangePassword(ctx, u.ID, &user.ChangePasswordRequest{CurrentPassword: strongPassword, NewPassword: strongPassword})
	assert.EqualError(t, err, "New password must be different from the current password.")

	err = s.ChangePassword(ctx, u.ID, &user.ChangePasswordRequest{})
	assert.EqualError(t, err, "Both current and new passwords are required.")

	require.NoError(t, s.ChangePassword(ctx, u.ID, &user.ChangePasswordRequest{CurrentPassword: strongPassword, NewPassword: "N3w$ecret!"}))
	_, err = s.Login(ctx, &user.LoginRequest{Email: "alice@example.com", Password: "N3w$ecret!"})
	assert.NoError(t, err)
	_, err = s.Login(ctx, &user.LoginRequest{Email: "alice@example.com", Password: strongPassword})
	assert.ErrorIs(t, err, apperr.ErrInvalidCreds)
}

func TestSummaries(t *testing.T) {
	s, _ := newService(user.Options{})
	u := signup(t, s, "alice@example.com").User

	got, err := s.Summaries(context.Background(), u.ID, uuid.New())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[u.ID].FirstName)
}
