package scylla

import (
	"context"
	"strings"
	"time"

	"boutique_back_end/internal/models"
)

// CreateUser réserve le nom d'utilisateur puis l'email par LWT avant d'écrire la fiche.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	email := strings.ToLower(u.Email)

	applied, _, err := s.cas(ctx, `INSERT INTO users_by_username (username, user_id) VALUES (?, ?) IF NOT EXISTS`, u.Username, u.ID)
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrConflict
	}

	applied, _, err = s.cas(ctx, `INSERT INTO users_by_email (email, user_id) VALUES (?, ?) IF NOT EXISTS`, email, u.ID)
	if err != nil || !applied {
		_ = s.session.Query(`DELETE FROM users_by_username WHERE username = ?`, u.Username).WithContext(ctx).Exec()
		if err != nil {
			return err
		}
		return models.ErrConflict
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.session.Query(`INSERT INTO users (id, username, email, password_hash, role, provider, provider_id,
		first_name, last_name, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.Provider, u.ProviderID,
		u.FirstName, u.LastName, u.CreatedAt).WithContext(ctx).Exec()
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	u := models.User{ID: id}
	err := s.session.Query(`SELECT username, email, password_hash, role, provider, provider_id,
		first_name, last_name, created_at FROM users WHERE id = ?`, id).WithContext(ctx).
		Scan(&u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Provider, &u.ProviderID,
			&u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "utilisateur")
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userByIndex(ctx, `SELECT user_id FROM users_by_username WHERE username = ?`, username)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userByIndex(ctx, `SELECT user_id FROM users_by_email WHERE email = ?`, strings.ToLower(email))
}

func (s *Store) userByIndex(ctx context.Context, stmt, key string) (*models.User, error) {
	var id string
	if err := s.session.Query(stmt, key).WithContext(ctx).Scan(&id); err != nil {
		return nil, notFound(err, "utilisateur")
	}
	return s.UserByID(ctx, id)
}
