package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"streamflix/internal/structures"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultMaxRetries = 5
	connectTimeout    = 5 * time.Second
)

// ErrConflict is returned by Apply when a new user's row could not be created
// after maxRetries insert races.
var ErrConflict = errors.New("ledger update conflict")

// PostgresLedgerRepository stores one JSONB document per user. Concurrent
// credits for a user are serialized by a row lock; version counts commits.
type PostgresLedgerRepository struct {
	pool       *pgxpool.Pool
	logger     providers.Logger
	maxRetries int
}

// gooseLogger routes migration output into the application log.
type gooseLogger struct {
	logger providers.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Fatalf(providers.TypeApp, "goose: "+format, v...)
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.logger.Infof(providers.TypeApp, "goose: "+format, v...)
}

func NewPostgresLedgerRepository(ctx context.Context, conf structures.PostgresConfig, logger providers.Logger) (*PostgresLedgerRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if conf.MaxConnections > 0 {
		poolConfig.MaxConns = conf.MaxConnections
	}
	if conf.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = conf.MaxConnLifetime
	}
	if conf.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = conf.ApplicationName
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	retries := conf.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	repo := &PostgresLedgerRepository{pool: pool, logger: logger, maxRetries: retries}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Infof(providers.TypeApp, "Connected to PostgreSQL (max conns %d)", poolConfig.MaxConns)
	return repo, nil
}

// Migrate applies the embedded schema migrations.
func (r *PostgresLedgerRepository) Migrate(ctx context.Context) error {
	// db borrows connections from the pool and is left for the pool to reclaim.
	db := stdlib.OpenDBFromPool(r.pool)

	goose.SetLogger(&gooseLogger{logger: r.logger})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresLedgerRepository) Close() {
	r.pool.Close()
}

// load reads a ledger. Inside tx the row stays locked until the transaction ends.
func (r *PostgresLedgerRepository) load(ctx context.Context, tx pgx.Tx, userID string) (*models.UserLedger, error) {
	var (
		doc []byte
		err error
	)
	if tx != nil {
		err = tx.QueryRow(ctx, `SELECT doc FROM ledgers WHERE user_id = $1 FOR UPDATE`, userID).Scan(&doc)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT doc FROM ledgers WHERE user_id = $1`, userID).Scan(&doc)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeLedger(doc)
}

func decodeLedger(doc []byte) (*models.UserLedger, error) {
	var ledger models.UserLedger
	if err := json.Unmarshal(doc, &ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if ledger.History == nil {
		ledger.History = make([]models.HistoryEntry, 0)
	}
	if ledger.SeedingHistory == nil {
		ledger.SeedingHistory = make([]models.SeedingSession, 0)
	}
	return &ledger, nil
}

// Apply locks the user's row for the length of a transaction, so credits for
// one user queue on the row lock instead of failing. Only two first credits
// racing to insert the same new user can collide; the loser retries against
// the committed row, up to maxRetries times.
func (r *PostgresLedgerRepository) Apply(ctx context.Context, userID string, identity *models.TelegramIdentity, mutate func(l *models.UserLedger) error) (*models.UserLedger, error) {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		ledger, committed, err := r.applyTx(ctx, userID, identity, mutate)
		if err != nil {
			return nil, err
		}
		if committed {
			return ledger, nil
		}
		r.logger.Debugf(providers.TypePost, "Ledger %s created concurrently, retry %d", userID, attempt+1)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, userID, r.maxRetries)
}

// applyTx reports committed=false when a concurrent insert created the row first.
func (r *PostgresLedgerRepository) applyTx(ctx context.Context, userID string, identity *models.TelegramIdentity, mutate func(l *models.UserLedger) error) (*models.UserLedger, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	current, err := r.load(ctx, tx, userID)
	exists := err == nil
	switch {
	case errors.Is(err, models.ErrNotFound):
		current = models.NewUserLedger(userID, time.Now().UTC())
	case err != nil:
		return nil, false, err
	}

	current.SetIdentityIfUnset(identity)
	if err := mutate(current); err != nil {
		return nil, false, err
	}
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, false, fmt.Errorf("encode ledger: %w", err)
	}

	if !exists {
		inserted, err := insertLedger(ctx, tx, current, doc)
		if err != nil || !inserted {
			return nil, false, err
		}
	} else if err := updateLedger(ctx, tx, current, doc); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit ledger transaction: %w", err)
	}
	return current, true, nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	// Rollback after Commit is a no-op returning ErrTxClosed.
	_ = tx.Rollback(context.WithoutCancel(ctx))
}

func identityColumns(l *models.UserLedger) models.TelegramIdentity {
	if l.TelegramIdentity == nil {
		return models.TelegramIdentity{}
	}
	return *l.TelegramIdentity
}

func insertLedger(ctx context.Context, tx pgx.Tx, l *models.UserLedger, doc []byte) (bool, error) {
	id := identityColumns(l)
	tag, err := tx.Exec(ctx,
		`INSERT INTO ledgers (user_id, tokens, doc, version, updated_at,
		     telegram_id, telegram_handle, telegram_username, telegram_photo_url)
		 VALUES ($1, $2, $3, 1, now(), $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO NOTHING`,
		l.UserID, l.Tokens, doc, id.ID, id.Handle, id.Username, id.PhotoURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// updateLedger rewrites a locked row. Identity columns are only filled while empty.
func updateLedger(ctx context.Context, tx pgx.Tx, l *models.UserLedger, doc []byte) error {
	id := identityColumns(l)
	_, err := tx.Exec(ctx,
		`UPDATE ledgers SET tokens = $2, doc = $3, version = version + 1, updated_at = now(),
		     telegram_id        = COALESCE(NULLIF(telegram_id, ''), $4),
		     telegram_handle    = COALESCE(NULLIF(telegram_handle, ''), $5),
		     telegram_username  = COALESCE(NULLIF(telegram_username, ''), $6),
		     telegram_photo_url = COALESCE(NULLIF(telegram_photo_url, ''), $7)
		 WHERE user_id = $1`,
		l.UserID, l.Tokens, doc, id.ID, id.Handle, id.Username, id.PhotoURL)
	return err
}

func (r *PostgresLedgerRepository) Get(ctx context.Context, userID string) (*models.UserLedger, error) {
	return r.load(ctx, nil, userID)
}

func (r *PostgresLedgerRepository) List(ctx context.Context) ([]*models.UserLedger, error) {
	return r.query(ctx, `SELECT doc FROM ledgers`)
}

// Top returns the n richest ledgers, ties broken by user id.
func (r *PostgresLedgerRepository) Top(ctx context.Context, n int) ([]*models.UserLedger, error) {
	return r.query(ctx, `SELECT doc FROM ledgers ORDER BY tokens DESC, user_id ASC LIMIT $1`, n)
}

func (r *PostgresLedgerRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM ledgers`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresLedgerRepository) query(ctx context.Context, sql string, args ...any) ([]*models.UserLedger, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	out := make([]*models.UserLedger, 0, len(docs))
	for _, doc := range docs {
		ledger, err := decodeLedger(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger)
	}
	return out, nil
}
