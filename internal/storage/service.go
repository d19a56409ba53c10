// Package storage keeps a ledger of images hosted on behalf of users.
package storage

import (
	"context"

	"backend-lacakair/internal/db"

	"github.com/google/uuid"
)

// KindPhoto marks images uploaded outside of a post.
const KindPhoto = "photo"

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) SaveObject(ctx context.Context, userID, url, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
	`, id, userID, url, kind)
	if err != nil {
		return "", err
	}
	return id, nil
}
