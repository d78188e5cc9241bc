package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// BcryptCost is the cost factor for hashing refresh token secrets.
const BcryptCost = 10

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrLoginUnavailable  = errors.New("login provider is not configured")
	ErrAccountDisabled   = errors.New("account is disabled")
	errMissingIDToken    = errors.New("token response has no id_token")
	errRefreshFormatting = errors.New("refresh token must have the form <id>.<secret>")
)

// OAuthClient is the part of *oauth2.Config the login flow uses.
type OAuthClient interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *domain.User `json:"user"`
}

type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthService interface {
	LoginURL(state string) (string, error)
	// HandleCallback exchanges the authorization code, verifies the ID token
	// and signs the user in, creating the account and its cart on first
	// login.
	HandleCallback(ctx context.Context, code string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	ParseAccessToken(token string) (domain.Identity, error)
}

type authService struct {
	tm       repository.TxManager
	oauth    OAuthClient
	verifier *oidc.IDTokenVerifier
	cfg      AuthConfig
	logger   *zap.Logger
}

// NewAuthService creates the auth service. oauth and verifier may be nil when
// no identity provider is configured; token refresh and validation still work.
func NewAuthService(
	tm repository.TxManager,
	oauth OAuthClient,
	verifier *oidc.IDTokenVerifier,
	cfg AuthConfig,
	logger *zap.Logger,
) AuthService {
	return &authService{
		tm:       tm,
		oauth:    oauth,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// NewOIDCClient discovers the provider and returns the OAuth2 client and ID
// token verifier for it.
func NewOIDCClient(ctx context.Context, cfg config.OIDCConfig) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return oauthCfg, verifier, nil
}

func (s *authService) LoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", ErrLoginUnavailable
	}
	return s.oauth.AuthCodeURL(state), nil
}

type idTokenClaims struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (s *authService) HandleCallback(ctx context.Context, code string) (*AuthResult, error) {
	if s.oauth == nil || s.verifier == nil {
		return nil, ErrLoginUnavailable
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrInvalidToken, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, errMissingIDToken)
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}

	result := &AuthResult{}
	err = s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		user, err := repos.Users.FindByID(ctx, claims.Subject)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			user, err = domain.NewUser(domain.NewUserParams{
				ID:        claims.Subject,
				Email:     claims.Email,
				FirstName: claims.GivenName,
				LastName:  claims.FamilyName,
			}, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := createUserWithCart(ctx, repos, user); err != nil {
				return err
			}
			s.logger.Info("Created user on first login", zap.String("user_id", user.ID))
		case err != nil:
			return err
		case !user.IsActive:
			return ErrAccountDisabled
		}

		refresh, err := s.issueRefreshToken(ctx, repos.RefreshTokens, user.ID)
		if err != nil {
			return err
		}
		result.RefreshToken = refresh
		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.AccessToken, err = s.generateAccessToken(result.User)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return result, nil
}

// Refresh generates a new access token using a valid refresh token
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	id, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}

	repos := s.tm.Repos()
	stored, err := repos.RefreshTokens.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.TokenHash), []byte(secret)); err != nil {
		return "", ErrInvalidToken
	}
	if stored.Expired(time.Now()) {
		return "", ErrTokenExpired
	}

	user, err := repos.Users.FindByID(ctx, stored.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return "", ErrAccountDisabled
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout revokes the refresh token. Unknown tokens count as already logged
// out.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	id, _, err := splitRefreshToken(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.tm.Repos().RefreshTokens.Revoke(ctx, id); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *authService) ParseAccessToken(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrTokenExpired
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: claims.UserID, Role: role}, nil
}

func (s *authService) generateAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// issueRefreshToken stores a bcrypt hash of a random secret and returns
// "<id>.<secret>" to the client.
func (s *authService) issueRefreshToken(ctx context.Context, tokens repository.RefreshTokenRepository, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash refresh token: %w", err)
	}

	now := time.Now().UTC()
	token := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: string(hash),
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}
	if err := tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return token.ID.String() + "." + secret, nil
}

func splitRefreshToken(raw string) (uuid.UUID, string, error) {
	idPart, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || secret == "" {
		return uuid.Nil, "", errRefreshFormatting
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", errRefreshFormatting
	}
	return id, secret, nil
}
