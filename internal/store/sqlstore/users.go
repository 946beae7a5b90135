package sqlstore

import (
	"context"

	"boutique_back_end/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return conflict(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "LOWER(email) = LOWER(?)", email)
}

func (s *Store) findUser(ctx context.Context, cond string, arg string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, cond, arg).Error; err != nil {
		return nil, notFound(err, "utilisateur")
	}
	return &u, nil
}
