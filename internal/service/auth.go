package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/refinery-dev/refinery/internal/domain"
)

// UserStore defines the user data access consumed by AuthService.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, email, passwordHash string) (*domain.User, error)
	CreateOAuthUser(ctx context.Context, email string, displayName *string) (*domain.User, error)
	FindOAuthAccount(ctx context.Context, provider domain.AuthProvider, providerAccountID string) (*domain.OAuthAccount, error)
	LinkOAuthAccount(ctx context.Context, account domain.OAuthAccount) error
}

// TokenStore persists refresh tokens by digest.
type TokenStore interface {
	Insert(ctx context.Context, userID, digest string, expiresAt time.Time) error
	FindByDigest(ctx context.Context, digest string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id int64) error
}

// AuthConfig holds OAuth and signing configuration.
type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	JWTSecret          string
	FrontendURL        string
}

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
)

// Claims is the authenticated identity extracted from an access token.
type Claims struct {
	UserID  string
	Tier    domain.Tier
	IsAdmin bool
}

// TokenPair holds an access token and its rotating refresh token. The
// refresh token is opaque; only its digest is stored server-side.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService handles registration, login, token issuance and OAuth sign-in.
type AuthService struct {
	users     UserStore
	tokens    TokenStore
	subs      SubscriptionReader
	jwtSecret []byte
	google    *oauth2.Config
	github    *oauth2.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens TokenStore, subs SubscriptionReader, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		subs:      subs,
		jwtSecret: []byte(cfg.JWTSecret),
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleOAuth.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
			RedirectURL:  cfg.FrontendURL + "/auth/google/callback",
		},
		github: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
			RedirectURL:  cfg.FrontendURL + "/auth/github/callback",
		},
	}
}

// Register creates a password account and signs the user in.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, string(hash))
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login verifies a password and issues a token pair. Deleted accounts and
// OAuth-only accounts fail the same way as a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrUnauthorized
		}
		return nil, nil, err
	}
	if user.DeletedAt != nil || user.PasswordHash == nil {
		return nil, nil, domain.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, nil, domain.ErrUnauthorized
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A replayed or expired token is rejected.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	digest := tokenDigest(rawToken)
	stored, err := s.tokens.FindByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(stored.TokenDigest), []byte(digest)) != 1 {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	if err := s.tokens.Revoke(ctx, stored.ID); err != nil {
		return nil, err
	}
	return s.issueTokenPair(ctx, user)
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	stored, err := s.tokens.FindByDigest(ctx, tokenDigest(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, stored.ID)
}

// GoogleAuthURL returns the Google OAuth authorization URL.
func (s *AuthService) GoogleAuthURL(state string) string {
	return s.google.AuthCodeURL(state)
}

// GitHubAuthURL returns the GitHub OAuth authorization URL.
func (s *AuthService) GitHubAuthURL(state string) string {
	return s.github.AuthCodeURL(state)
}

// GoogleCallback exchanges the authorization code and signs the user in,
// linking the provider identity to an existing account when the verified
// email matches.
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (*domain.User, *TokenPair, error) {
	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("google token exchange: %w", err)
	}

	info, err := fetchGoogleUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch google user info: %w", err)
	}
	if !info.VerifiedEmail {
		return nil, nil, fmt.Errorf("%w: google email is not verified", domain.ErrForbidden)
	}

	user, err := s.resolveOAuthUser(ctx, domain.AuthProviderGoogle, info.ID, info.Email, info.Name)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// GitHubCallback exchanges the authorization code and signs the user in.
func (s *AuthService) GitHubCallback(ctx context.Context, code string) (*domain.User, *TokenPair, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("github token exchange: %w", err)
	}

	info, err := fetchGitHubUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch github user info: %w", err)
	}

	user, err := s.resolveOAuthUser(ctx, domain.AuthProviderGitHub, fmt.Sprintf("%d", info.ID), info.Email, info.Login)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// ValidateToken validates an access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return nil, domain.ErrUnauthorized
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, domain.ErrUnauthorized
	}

	tier := domain.TierFree
	if t, ok := claims["tier"].(string); ok && t != "" {
		tier = domain.Tier(t)
	}
	isAdmin, _ := claims["admin"].(bool)

	return &Claims{UserID: userID, Tier: tier, IsAdmin: isAdmin}, nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

// resolveOAuthUser maps a provider identity to a local account. An existing
// link wins; otherwise a verified-email match merges into that account, and
// an unknown email creates a fresh one.
func (s *AuthService) resolveOAuthUser(ctx context.Context, provider domain.AuthProvider, providerAccountID, email, login string) (*domain.User, error) {
	if account, err := s.users.FindOAuthAccount(ctx, provider, providerAccountID); err != nil {
		return nil, err
	} else if account != nil {
		return s.users.FindByID(ctx, account.UserID)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		user, err = s.users.CreateOAuthUser(ctx, email, strPtr(login))
	}
	if err != nil {
		return nil, err
	}
	if user.DeletedAt != nil {
		return nil, domain.ErrUnauthorized
	}

	if err := s.users.LinkOAuthAccount(ctx, domain.OAuthAccount{
		UserID:            user.ID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		ProviderLogin:     login,
		ProviderEmail:     strPtr(email),
	}); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	tier := domain.TierFree
	if sub, err := s.subs.Active(ctx, user.ID); err != nil {
		return nil, err
	} else if sub != nil {
		tier = sub.Tier
	}

	now := time.Now()
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"type":  "access",
		"tier":  string(tier),
		"admin": user.IsAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(accessTokenTTL).Unix(),
	})
	accessStr, err := access.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	raw, err := randomToken()
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Insert(ctx, user.ID, tokenDigest(raw), now.Add(refreshTokenTTL)); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessStr, RefreshToken: raw}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func tokenDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &info, nil
}

type githubUserInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

func fetchGitHubUserInfo(ctx context.Context, accessToken string) (*githubUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.github.com/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user info returned status %d", resp.StatusCode)
	}

	var info githubUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}

	if info.Email == "" {
		email, err := fetchGitHubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		info.Email = email
	}

	return &info, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.github.com/user/emails", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch emails: %w", err)
	}
	defer resp.Body.Close()

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", fmt.Errorf("decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no verified primary email for github user")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
