package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/farmbridge/internal/common"
	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

const (
	defaultAccessTTL = 12 * time.Hour
	roleClaim        = "role"
)

// Queries is the user persistence the auth service needs.
type Queries interface {
	CreateUser(ctx context.Context, arg dbgen.CreateUserParams) (dbgen.User, error)
	GetUserByEmail(ctx context.Context, email string) (dbgen.User, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (dbgen.User, error)
}

// Service registers accounts, checks credentials and issues access tokens.
type Service struct {
	queries   Queries
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
	params    *argon2id.Params
}

// Config configures the auth service.
type Config struct {
	Queries        Queries
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	// HashParams overrides argon2id.DefaultParams; tests use cheaper settings.
	HashParams *argon2id.Params
}

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=farmer buyer"`
}

// LoginResult bundles the token issued after a successful login.
type LoginResult struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expires_at"`
}

// Claims is the identity carried by a valid access token.
type Claims struct {
	UserID string
	Role   string
}

// NewService constructs a Service with defaults applied.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "farmbridge"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "farmbridge-web"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	params := cfg.HashParams
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Service{
		queries:   cfg.Queries,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
			Roles:     []string{string(dbgen.UserRoleFarmer), string(dbgen.UserRoleBuyer)},
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		params:    params,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates an account. Emails are unique case-insensitively.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, common.Validation("Missing required field: name", nil)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return User{}, common.Validation("Missing required field: email", nil)
	}
	if len(in.Password) < 8 {
		return User{}, common.Validation("password must be at least 8 characters", nil)
	}
	role := dbgen.UserRoleFarmer
	switch strings.ToLower(strings.TrimSpace(in.Role)) {
	case "", string(dbgen.UserRoleFarmer):
	case string(dbgen.UserRoleBuyer):
		role = dbgen.UserRoleBuyer
	default:
		return User{}, common.Validation("role must be one of: farmer buyer", nil)
	}

	hash, err := argon2id.CreateHash(in.Password, s.params)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.queries.CreateUser(ctx, dbgen.CreateUserParams{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "Email already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(created), nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	invalid := common.NewAppError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized, nil)
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || password == "" {
		return LoginResult{}, invalid
	}
	u, err := s.queries.GetUserByEmail(ctx, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return LoginResult{}, invalid
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalid
	}
	token, expiry, err := s.signAccessToken(db.UUIDString(u.ID), string(u.Role))
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{User: toUser(u), AccessToken: token, AccessExpiry: expiry}, nil
}

// Me returns the account behind userID.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	id, err := db.ToUUID(userID)
	if err != nil {
		return User{}, common.Unauthorized("Unauthorized")
	}
	u, err := s.queries.GetUserByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, common.NotFound("User not found", err)
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return toUser(u), nil
}

// ParseAccessToken validates token and returns the identity it carries.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.Unauthorized("missing token")
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	claims := Claims{UserID: parsed.Subject()}
	if v, ok := parsed.Get(roleClaim); ok {
		if role, ok := v.(string); ok {
			claims.Role = role
		}
	}
	if claims.UserID == "" {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, errors.New("token without subject"))
	}
	return claims, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	if alg == jwa.NoSignature {
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}

func (s *Service) signAccessToken(userID, role string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("auth: invalid user identifier")
	}
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func toUser(u dbgen.User) User {
	return User{
		ID:        db.UUIDString(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Time,
	}
}
