package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// PostgresContentRepo expose les pools de contenu par stratégie.
// Les prédicats lourds (visibilité, masqué/signalé, fenêtre temporelle,
// cap) vivent en SQL : on ne rapatrie jamais plus de `limit` lignes.
type PostgresContentRepo struct {
	db *pgxpool.Pool
}

func NewPostgresContentRepo(db *pgxpool.Pool) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

const contentColumns = `
	id, author_id, type, body, visibility, COALESCE(group_id, ''),
	hashtags, has_media, hidden, reported,
	likes_count, comments_count, shares_count, views_count,
	created_at, published_at
`

// TimelinePool : contenus de l'utilisateur + de ses amis + publics.
// since à zéro = pas de borne basse.
func (r *PostgresContentRepo) TimelinePool(ctx context.Context, userID string, friendIDs []string, since time.Time, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE hidden = false AND reported = false
		  AND published_at >= $4
		  AND (
		        author_id = $1
		     OR visibility = 'public'
		     OR (author_id = ANY($2) AND visibility IN ('friends', 'friends_of_friends'))
		  )
		ORDER BY published_at DESC, created_at DESC
		LIMIT $3
	`
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	rows, err := r.db.Query(ctx, query, userID, friendIDs, limit, since)
	if err != nil {
		return nil, fmt.Errorf("timeline pool for %s: %w", userID, err)
	}
	defer rows.Close()
	return collectContent(rows)
}

// AuthoredPool : contenus publiés par les auteurs donnés (feed following).
func (r *PostgresContentRepo) AuthoredPool(ctx context.Context, authorIDs []string, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE hidden = false AND reported = false
		  AND author_id = ANY($1)
		  AND visibility IN ('public', 'friends')
		ORDER BY published_at DESC, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, authorIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("authored pool: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}

// PublicPool : contenus publics depuis `since` (pool trending).
func (r *PostgresContentRepo) PublicPool(ctx context.Context, since time.Time, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE hidden = false AND reported = false
		  AND visibility = 'public'
		  AND published_at >= $1
		ORDER BY published_at DESC, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("public pool: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}

// DiscoverPool : publics récents hors auteurs exclus, retenus si un intérêt
// matche (hashtag ou corps) OU si le plancher de popularité est atteint.
func (r *PostgresContentRepo) DiscoverPool(ctx context.Context, excludedAuthorIDs []string, interests []string, minLikes int, since time.Time, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE hidden = false AND reported = false
		  AND visibility = 'public'
		  AND published_at >= $1
		  AND NOT (author_id = ANY($2))
		  AND (
		        likes_count >= $3
		     OR hashtags && $4::text[]
		     OR EXISTS (
		          SELECT 1 FROM unnest($4::text[]) AS term
		          WHERE body ILIKE '%' || term || '%'
		        )
		  )
		ORDER BY published_at DESC
		LIMIT $5
	`
	rows, err := r.db.Query(ctx, query, since, excludedAuthorIDs, minLikes, interests, limit)
	if err != nil {
		return nil, fmt.Errorf("discover pool: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}

func collectContent(rows pgx.Rows) ([]domain.ContentItem, error) {
	items := make([]domain.ContentItem, 0)
	for rows.Next() {
		var item domain.ContentItem
		err := rows.Scan(
			&item.ID, &item.AuthorID, &item.Type, &item.Body, &item.Visibility, &item.GroupID,
			&item.Hashtags, &item.HasMedia, &item.Hidden, &item.Reported,
			&item.LikesCount, &item.Comments, &item.Shares, &item.Views,
			&item.CreatedAt, &item.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
