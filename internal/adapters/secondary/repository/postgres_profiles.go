package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// PostgresProfileRepo lit les projections de profil (filtres de suggestion,
// sous-scores, enrichissement). `completeness` est pré-calculé côté store
// à chaque mise à jour de profil, on ne le recalcule pas ici.
type PostgresProfileRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProfileRepo(db *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `
	id, name, COALESCE(avatar_url, ''), verified, is_private, allow_friend_requests,
	completeness, interests, preferred_types,
	COALESCE(city, ''), COALESCE(country, ''), last_active_at, created_at
`

// Profile renvoie (nil, nil) pour un id inconnu, conformément au port.
func (r *PostgresProfileRepo) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	row := r.db.QueryRow(ctx, query, userID)
	profile, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", userID, err)
	}
	return profile, nil
}

// Profiles : fetch batch avec ANY($1), les ids inconnus sont absents de la map.
func (r *PostgresProfileRepo) Profiles(ctx context.Context, userIDs []string) (map[string]domain.UserProfile, error) {
	if len(userIDs) == 0 {
		return map[string]domain.UserProfile{}, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("profiles batch: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]domain.UserProfile, len(userIDs))
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profiles batch: %w", err)
		}
		profiles[profile.ID] = *profile
	}
	return profiles, rows.Err()
}

func scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var preferred []string
	err := row.Scan(
		&p.ID, &p.Name, &p.AvatarURL, &p.Verified, &p.IsPrivate, &p.AllowFriendRequests,
		&p.Completeness, &p.Interests, &preferred,
		&p.City, &p.Country, &p.LastActiveAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PreferredTypes = make([]domain.ContentType, len(preferred))
	for i, t := range preferred {
		p.PreferredTypes[i] = domain.ContentType(t)
	}
	return &p, nil
}
