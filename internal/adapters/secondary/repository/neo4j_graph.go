package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// Neo4jGraphRepo répond aux questions d'adjacence sur le graphe social.
// Deux types d'arêtes : FRIEND (symétrique, propriété status) et FOLLOWS
// (dirigée, propriété muted). Contrat du port : zéro ligne = slice vide,
// jamais une erreur ; une panne du driver, elle, remonte (fail-closed :
// classer sans adjacence produirait des résultats silencieusement faux).
type Neo4jGraphRepo struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphRepo(driver neo4j.DriverWithContext) *Neo4jGraphRepo {
	return &Neo4jGraphRepo{driver: driver}
}

// EnsureSchema crée la contrainte d'unicité sur User.id (et donc l'index)
// pour que tous les lookups par id restent O(1). Idempotent.
func (r *Neo4jGraphRepo) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

// FriendIDs : amitiés ACCEPTÉES uniquement. L'arête FRIEND étant symétrique,
// le MATCH non dirigé unionne les deux sens en une requête.
func (r *Neo4jGraphRepo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		MATCH (u:User {id: $userId})-[r:FRIEND]-(f:User)
		WHERE r.status = 'accepted'
		RETURN DISTINCT f.id AS friendId
	`
	return r.collectIDs(ctx, query, map[string]any{"userId": userID}, "friendId")
}

// FollowingIDs : follows actifs (non mutés) uniquement.
func (r *Neo4jGraphRepo) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		MATCH (u:User {id: $userId})-[r:FOLLOWS]->(t:User)
		WHERE coalesce(r.muted, false) = false
		RETURN DISTINCT t.id AS targetId
	`
	return r.collectIDs(ctx, query, map[string]any{"userId": userID}, "targetId")
}

// RelationStatuses : tous les voisins FRIEND quel que soit le statut, en une
// requête. C'est l'ensemble d'exclusion du moteur de suggestion.
func (r *Neo4jGraphRepo) RelationStatuses(ctx context.Context, userID string) (map[string]domain.FriendStatus, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $userId})-[r:FRIEND]-(o:User)
			RETURN o.id AS otherId, r.status AS status
		`
		res, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}

		statuses := make(map[string]domain.FriendStatus)
		for res.Next(ctx) {
			rec := res.Record()
			id, _ := rec.Get("otherId")
			status, _ := rec.Get("status")
			idStr, ok1 := id.(string)
			statusStr, ok2 := status.(string)
			if !ok1 || !ok2 {
				continue
			}
			statuses[idStr] = domain.FriendStatus(statusStr)
		}
		return statuses, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j relation statuses for %s: %w", userID, err)
	}
	return result.(map[string]domain.FriendStatus), nil
}

func (r *Neo4jGraphRepo) collectIDs(ctx context.Context, query string, params map[string]any, field string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0)
		for res.Next(ctx) {
			v, _ := res.Record().Get(field)
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j adjacency query: %w", err)
	}
	return result.([]string), nil
}
