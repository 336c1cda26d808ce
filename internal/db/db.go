package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"finance-tracker/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = 10
	if cfg.DatabaseMaxConns > 0 {
		poolCfg.MaxConns = cfg.DatabaseMaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Pinger es lo minimo que necesita el readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return pool.Ping(ctx)
}
