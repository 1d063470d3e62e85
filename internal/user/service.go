package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/validate"
)

type Options struct {
	Secret   string
	Issuer   string
	TTL      time.Duration
	HashCost int
}

type Service struct {
	repo Store
	opts Options
}

type MyJWTClaims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

func NewService(repo Store, opts Options) *Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Service{repo: repo, opts: opts}
}

// TokenTTL is the lifetime handed to cookies.
func (s *Service) TokenTTL() time.Duration { return s.opts.TTL }

func (s *Service) Register(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.HashCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	u := &User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  string(hashedPwd),
		About:     DefaultAbout,
		Skills:    StringList{},
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Message: "User added successfully.", AccessToken: token, User: u}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, apperr.ErrInvalidCreds
	}

	u, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.ErrInvalidCreds
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.ErrInvalidCreds
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Message: "Login Successful!", AccessToken: token, User: u}, nil
}

func (s *Service) IssueToken(id uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		UserID: id.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.opts.Secret))
	if err != nil {
		return "", apperr.Internal("failed to sign token", err)
	}
	return ss, nil
}

// ValidateToken returns the identity a token was issued to. Expired tokens are reported
// separately from malformed or forged ones.
func (s *Service) ValidateToken(tokenString string) (uuid.UUID, error) {
	claims := &MyJWTClaims{}
	parseOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.opts.Issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(s.opts.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	}, parseOpts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, apperr.ErrTokenExpired
		}
		return uuid.Nil, apperr.ErrTokenInvalid
	}
	if !token.Valid {
		return uuid.Nil, apperr.ErrTokenInvalid
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, apperr.ErrTokenInvalid
	}
	return id, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	return s.repo.GetUsersByIDs(ctx, ids)
}

// Summaries resolves ids to event snapshots keyed by id. Unknown ids are omitted.
func (s *Service) Summaries(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]Summary, error) {
	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Summary, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

func (s *Service) EditProfile(ctx context.Context, id uuid.UUID, req *EditProfileRequest) (*User, error) {
	if req.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*req.Gender))
		req.Gender = &g
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Age != nil {
		u.Age = req.Age
	}
	if req.Gender != nil {
		u.Gender = req.Gender
	}
	if req.ProfileURL != nil {
		u.ProfileURL = *req.ProfileURL
	}
	if req.About != nil {
		u.About = *req.About
	}
	if req.Skills != nil {
		u.Skills = StringList(*req.Skills)
	}

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, req *ChangePasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return apperr.InvalidArgument("Both current and new passwords are required.")
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.CurrentPassword)); err != nil {
		return apperr.InvalidArgument("Password is incorrect.")
	}
	if !validate.StrongPassword(req.NewPassword) {
		return apperr.InvalidArgument("New password must contain at least 8 characters, 1 uppercase, 1 lowercase, 1 number, and 1 symbol.")
	}
	if req.CurrentPassword == req.NewPassword {
		return apperr.InvalidArgument("New password must be different from the current password.")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.opts.HashCost)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hashed))
}
