package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/kakeibo/internal/database"
	"github.com/hitoshi/kakeibo/internal/model"
)

// startPostgres はPostgreSQLコンテナを起動し、マイグレーション済みの接続を返す。
// Dockerが利用できない環境ではテストをスキップする。
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("short モードのためスキップ")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("kakeibo_test"),
		postgres.WithUsername("kakeibo"),
		postgres.WithPassword("kakeibo"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("PostgreSQLコンテナの起動に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("コンテナの停止に失敗: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続文字列の取得に失敗: %v", err)
	}
	if err := database.RunMigrations(dsn); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := database.Open(dsn, database.PoolConfig{})
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestIntegration_PostgresTransactionRepo(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresTransactionRepo(db)
	ctx := context.Background()

	feb := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	endOfFeb := time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)
	mar := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	inputs := []*model.Transaction{
		newTx("1000.00", model.KindIncome, "Salary", feb),
		newTx("12.34", model.KindExpense, "Food", endOfFeb),
		newTx("99.99", model.KindExpense, "Food", mar),
	}
	for _, tx := range inputs {
		if err := repo.Create(ctx, tx); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if tx.ID == 0 {
			t.Fatal("IDが採番されていません")
		}
	}

	t.Run("全件は発生日時の降順", func(t *testing.T) {
		all, err := repo.List(ctx, model.Criteria{})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(all) = %d, want 3", len(all))
		}
		if all[0].ID != inputs[2].ID || all[2].ID != inputs[0].ID {
			t.Errorf("並び順が不正: %d, %d, %d", all[0].ID, all[1].ID, all[2].ID)
		}
		if !all[1].Amount.Equal(decimal.RequireFromString("12.34")) {
			t.Errorf("金額が往復で変化しました: %s", all[1].Amount)
		}
	})

	t.Run("月の境界は半開区間", func(t *testing.T) {
		criteria, err := model.ParseCriteria(model.CriteriaInput{Period: "2024-02"})
		if err != nil {
			t.Fatalf("ParseCriteria returned error: %v", err)
		}
		got, err := repo.List(ctx, criteria)
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("2月の件数 = %d, want 2", len(got))
		}
	})

	t.Run("削除", func(t *testing.T) {
		deleted, err := repo.DeleteByID(ctx, inputs[0].ID)
		if err != nil || !deleted {
			t.Fatalf("DeleteByID() = %v, %v", deleted, err)
		}
		deleted, err = repo.DeleteByID(ctx, 999999)
		if err != nil || deleted {
			t.Errorf("存在しないIDのDeleteByID() = %v, %v", deleted, err)
		}
	})
}

func TestIntegration_PostgresUserRepo_Duplicate(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := &model.User{
		ID:                uuid.New().String(),
		ExternalSubjectID: "google-123",
		Email:             "a@example.com",
		CreatedAt:         time.Now(),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	dup := &model.User{
		ID:                uuid.New().String(),
		ExternalSubjectID: "google-123",
		Email:             "other@example.com",
		CreatedAt:         time.Now(),
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}

	found, err := repo.FindBySubjectID(ctx, "google-123")
	if err != nil || found == nil || found.ID != user.ID {
		t.Errorf("FindBySubjectID() = %+v, %v", found, err)
	}
}

func TestIntegration_PostgresSessionRepo(t *testing.T) {
	db := startPostgres(t)
	users := NewPostgresUserRepo(db)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	user := &model.User{ID: uuid.New().String(), ExternalSubjectID: "sub", Email: "s@example.com", CreatedAt: time.Now()}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("Create user returned error: %v", err)
	}

	now := time.Now()
	live := &model.Session{ID: "live", UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	for _, s := range []*model.Session{live, expired} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create session returned error: %v", err)
		}
	}

	if got, err := sessions.FindByID(ctx, "expired"); err != nil || got != nil {
		t.Errorf("期限切れセッションのFindByID() = %+v, %v", got, err)
	}

	n, err := sessions.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if got, err := sessions.FindByID(ctx, "live"); err != nil || got == nil {
		t.Errorf("有効なセッションのFindByID() = %+v, %v", got, err)
	}
}
