// Package accounts gère l'inscription, la connexion locale, OAuth et la révocation des JWT.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/markbates/goth"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/validation"
)

// Revoker est implémenté par la blacklist Redis (ou mémoire).
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Service struct {
	users   store.Users
	tokens  *Tokens
	revoker Revoker
}

func NewService(users store.Users, tokens *Tokens, revoker Revoker) *Service {
	return &Service{users: users, tokens: tokens, revoker: revoker}
}

type RegisterInput struct {
	Username  string `json:"username" validate:"required,alphanum,min=3,max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
}

// Session est la réponse d'authentification : l'utilisateur et son JWT.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash mot de passe: %w", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleCustomer,
		Provider:     models.ProviderLocal,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.NewValidationError("username", "nom d'utilisateur ou email déjà utilisé")
		}
		return nil, err
	}

	observability.FromContext(ctx).Info("✅ Utilisateur inscrit", zap.String("user_id", u.ID))
	return s.issue(u)
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login accepte le nom d'utilisateur ou l'email.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var (
		u   *models.User
		err error
	)
	if strings.Contains(in.Username, "@") {
		u, err = s.users.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Username)))
	} else {
		u, err = s.users.UserByUsername(ctx, in.Username)
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		// compte créé via OAuth
		return nil, models.ErrInvalidCredentials
	}

	ok, err := VerifyPassword(in.Password, u.PasswordHash)
	if err != nil {
		observability.FromContext(ctx).Warn("⚠️ Hash de mot de passe illisible", zap.String("user_id", u.ID), zap.Error(err))
		return nil, models.ErrInvalidCredentials
	}
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	return s.issue(u)
}

// Logout révoque le token jusqu'à son expiration.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if s.revoker == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("révocation token: %w", err)
	}
	return nil
}

// Authenticate vérifie la signature, l'expiration puis la blacklist.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("vérification blacklist: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.users.UserByID(ctx, userID)
}

// OAuthLogin retrouve l'utilisateur par email ou le crée, puis émet un JWT.
func (s *Service) OAuthLogin(ctx context.Context, gu goth.User) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" {
		return nil, models.NewValidationError("email", "le fournisseur n'a pas transmis d'email")
	}

	u, err := s.users.UserByEmail(ctx, email)
	if err == nil {
		return s.issue(u)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	u = &models.User{
		ID:         uuid.NewString(),
		Username:   gu.Provider + "_" + gu.UserID,
		Email:      email,
		Role:       models.RoleCustomer,
		Provider:   gu.Provider,
		ProviderID: gu.UserID,
		FirstName:  gu.FirstName,
		LastName:   gu.LastName,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// création concurrente pour le même email
		if u, err = s.users.UserByEmail(ctx, email); err != nil {
			return nil, err
		}
	}

	observability.FromContext(ctx).Info("✅ Utilisateur OAuth connecté", zap.String("provider", gu.Provider), zap.String("user_id", u.ID))
	return s.issue(u)
}

// CreateAdmin crée un compte administrateur local (commande add-admin).
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	if len(password) < 8 {
		return nil, models.NewValidationError("password", "doit contenir au moins 8 caractères")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Provider:     models.ProviderLocal,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) issue(u *models.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}
