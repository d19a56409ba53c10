package post

import (
	"context"
	"errors"

	"backend-lacakair/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound  = errors.New("post not found")
	ErrForbidden = errors.New("only the author may delete this post")
)

const selectPosts = `
		SELECT id, user_id, user_name, image_url, caption, likes, created_at,
		       ST_Y(location::geometry), ST_X(location::geometry), COALESCE(location_name, '')
		FROM posts`

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// List returns every post, newest first. This is the snapshot the map clusters.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	rows, err := s.db.Query(ctx, selectPosts+`
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// Nearby returns geotagged posts within radiusKm of a point, newest first.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Post, error) {
	rows, err := s.db.Query(ctx, selectPosts+`
		WHERE location IS NOT NULL
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY created_at DESC
	`, lng, lat, radiusKm*1000)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *Service) Get(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRow(ctx, selectPosts+`
		WHERE id=$1
	`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	return p, err
}

// Create stores a post whose image is already hosted. A post with only one
// coordinate is stored without a location.
func (s *Service) Create(ctx context.Context, input Post) (Post, error) {
	input.ID = uuid.NewString()
	input.Likes = []string{}
	if !input.HasLocation() {
		input.Latitude, input.Longitude, input.LocationName = nil, nil, ""
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO posts (id, user_id, user_name, image_url, caption, likes, location, location_name)
		VALUES ($1,$2,$3,$4,$5,'{}', ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography, NULLIF($8,''))
		RETURNING created_at
	`, input.ID, input.UserID, input.UserName, input.ImageURL, input.Caption, input.Longitude, input.Latitude, input.LocationName)
	if err := row.Scan(&input.Timestamp); err != nil {
		return Post{}, err
	}
	return input, nil
}

// ToggleLike adds userID to the post's likers, or removes it when present.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) ([]string, error) {
	var likes []string
	err := s.db.QueryRow(ctx, `
		UPDATE posts
		SET likes = CASE WHEN $2 = ANY(likes) THEN array_remove(likes, $2) ELSE array_append(likes, $2) END
		WHERE id=$1
		RETURNING likes
	`, postID, userID).Scan(&likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return UniqueLikes(likes), nil
}

// Delete removes a post on behalf of userID, who must be its author.
func (s *Service) Delete(ctx context.Context, postID, userID string) error {
	var authorID string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM posts WHERE id=$1`, postID).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if authorID != userID {
		return ErrForbidden
	}

	_, err = s.db.Exec(ctx, `DELETE FROM posts WHERE id=$1 AND user_id=$2`, postID, userID)
	return err
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	if err := row.Scan(&p.ID, &p.UserID, &p.UserName, &p.ImageURL, &p.Caption, &p.Likes, &p.Timestamp,
		&p.Latitude, &p.Longitude, &p.LocationName); err != nil {
		return Post{}, err
	}
	p.Likes = UniqueLikes(p.Likes)
	if !p.HasLocation() {
		p.Latitude, p.Longitude = nil, nil
	}
	return p, nil
}
