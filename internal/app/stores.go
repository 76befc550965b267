package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/kakeibo/internal/config"
	"github.com/hitoshi/kakeibo/internal/database"
	"github.com/hitoshi/kakeibo/internal/handler"
	"github.com/hitoshi/kakeibo/internal/repository"
)

// dbPingTimeout は起動時の接続確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// stores はSTORE_BACKENDに応じて生成したリポジトリ群。
type stores struct {
	transactions repository.TransactionRepository
	users        repository.UserRepository
	sessions     repository.SessionRepository

	// health はPostgreSQLの場合のみ設定する。nilの場合/healthは常に200を返す。
	health handler.HealthChecker
	db     *sql.DB
}

// openStores は設定に従ってリポジトリを生成する。
// postgresの場合は接続を開いてPingで疎通を確認する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		slog.Warn("using in-memory store: data is lost on restart")
		return &stores{
			transactions: repository.NewMemoryTransactionRepo(),
			users:        repository.NewMemoryUserRepo(),
			sessions:     repository.NewMemorySessionRepo(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	return &stores{
		transactions: repository.NewPostgresTransactionRepo(db),
		users:        repository.NewPostgresUserRepo(db),
		sessions:     repository.NewPostgresSessionRepo(db),
		health:       db,
		db:           db,
	}, nil
}

// Close はDB接続を閉じる。メモリストアの場合は何もしない。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
