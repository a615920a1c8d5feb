package database

import (
	"context"
	"time"
)

const healthTimeout = 2 * time.Second

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetStats reports reachability and pool usage for the health endpoint
func (r *Repository) GetStats() map[string]interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	stats := map[string]interface{}{"healthy": true}
	if err := r.HealthCheck(ctx); err != nil {
		stats["healthy"] = false
		stats["error"] = err.Error()
	}

	pool := r.db.Pool.Stat()
	stats["total_conns"] = pool.TotalConns()
	stats["idle_conns"] = pool.IdleConns()
	stats["max_conns"] = pool.MaxConns()
	return stats
}
