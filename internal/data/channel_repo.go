package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/data/pgxutil"
	"github.com/reviewloop/relay/internal/domain/model"
)

// notifyChannel is the Postgres NOTIFY channel used to wake idle consumers
// when a delivery is published or requeued.
const notifyChannel = "relay_delivery_ready"

const defaultRetryDelay = 30 * time.Second

// ChannelRepoConfig holds configuration options for the channel repository.
type ChannelRepoConfig struct {
	// MaxReceives is the bounded redelivery limit applied to new deliveries.
	MaxReceives int
	// RetryDelay is how long a released delivery stays invisible before redelivery.
	RetryDelay time.Duration
	Logger     *slog.Logger
	// TimeProvider is optional; real time is used when nil.
	TimeProvider TimeProvider
}

// ChannelRepo is the Postgres-backed durable channel. Deliveries live in the
// deliveries table; reservation uses FOR UPDATE SKIP LOCKED so concurrent
// consumers never double-receive within a lease, and exhausted deliveries
// move to the dead_letters table.
//
// ChannelRepo implements core.Channel, core.ChannelIntrospector and
// core.ReaperRepository.
type ChannelRepo struct {
	DB           *sql.DB
	cfg          ChannelRepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewChannelRepo creates a new ChannelRepo with the given database connection
// and configuration.
func NewChannelRepo(db *sql.DB, cfg ChannelRepoConfig) *ChannelRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	if cfg.MaxReceives < 1 {
		cfg.MaxReceives = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &ChannelRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const deliveryColumns = `
  id,
  body,
  status,
  receive_count,
  max_receives,
  last_error,
  lease_expires_at,
  enqueued_at,
  acked_at,
  updated_at
`

// SQL used by Reserve to atomically lease the next pending delivery.
// next_visible_at carries the release backoff; a freshly published delivery
// is visible immediately.
const reserveUpdateSQL = `
  WITH cte AS (
    SELECT id FROM deliveries
    WHERE status = 'pending' AND next_visible_at <= $1
    ORDER BY next_visible_at ASC, enqueued_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE deliveries d
  SET
    status = 'inflight',
    receive_count = d.receive_count + 1,
    lease_expires_at = $2,
    updated_at = $3
  FROM cte
  WHERE d.id = cte.id
  RETURNING d.id, d.body, d.status, d.receive_count, d.max_receives, d.last_error, d.lease_expires_at, d.enqueued_at, d.acked_at, d.updated_at`

// Publish enqueues a normalized job and returns the delivery id. The insert
// and the wakeup notification commit atomically so a consumer woken by the
// notification always finds the row.
func (r *ChannelRepo) Publish(ctx context.Context, job *model.NormalizedJob) (string, error) {
	if job == nil {
		return "", errors.New("job is required")
	}
	if err := job.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, execErr := tx.Exec(ctx, `
        INSERT INTO deliveries(id, body, status, receive_count, max_receives, next_visible_at, enqueued_at, updated_at)
        VALUES ($1, $2, 'pending', 0, $3, $4, $4, $4)
      `, id, body, r.cfg.MaxReceives, now); execErr != nil {
				return fmt.Errorf("insert delivery: %w", execErr)
			}

			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, id); notifyErr != nil {
				return fmt.Errorf("send delivery notification: %w", notifyErr)
			}
			return nil
		},
	})
	if txErr != nil {
		return "", txErr
	}
	return id, nil
}

// Reserve leases the next available delivery for the given duration. Expired
// leases are requeued first so a crashed consumer's deliveries become
// reservable again. Returns model.ErrNoDeliveries when the channel is empty.
func (r *ChannelRepo) Reserve(ctx context.Context, lease time.Duration) (*model.Delivery, error) {
	if lease <= 0 {
		return nil, errors.New("lease must be positive")
	}

	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired deliveries: %w", err)
	}

	var delivery *model.Delivery
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(lease)

			rows, qerr := tx.Query(
				ctx,
				reserveUpdateSQL,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve delivery: %w", qerr)
			}
			defer rows.Close()

			d, cerr := collectDeliveryFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoDeliveries
			}
			if cerr != nil {
				return fmt.Errorf("reserve delivery: %w", cerr)
			}
			delivery = d
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoDeliveries) {
			return nil, model.ErrNoDeliveries
		}
		return nil, err
	}
	return delivery, nil
}

// Advisory lock namespace for requeueExpired. There is a single delivery
// stream, so one minor key suffices.
const (
	advisoryLockRequeueMajor int64 = 1001
	advisoryLockRequeueMinor int64 = 1
)

// requeueExpired returns inflight deliveries with expired leases to pending
// and returns the number requeued. An advisory lock keeps concurrent
// consumers from stampeding on the same sweep.
func (r *ChannelRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE deliveries
          SET status = 'pending',
              lease_expires_at = NULL,
              next_visible_at = $1,
              last_error = COALESCE(last_error, 'lease expired')
          WHERE status = 'inflight'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}

	// Expired-lease deliveries that already burned through their receives
	// dead-letter here rather than cycling pending->inflight forever.
	if rowsAffected > 0 {
		if _, dlErr := r.deadLetterExhausted(ctx); dlErr != nil {
			return rowsAffected, dlErr
		}
	}
	return rowsAffected, nil
}

// deadLetterExhausted moves pending deliveries whose receive count already
// reached max_receives into dead_letters. Runs after an expired-lease sweep;
// Release handles the explicit-failure path itself.
func (r *ChannelRepo) deadLetterExhausted(ctx context.Context) (int64, error) {
	var moved int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			currentTime := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
          WITH exhausted AS (
            DELETE FROM deliveries
            WHERE status = 'pending' AND receive_count >= max_receives
            RETURNING id, body, receive_count, last_error, enqueued_at
          )
          INSERT INTO dead_letters(delivery_id, body, receive_count, reason, enqueued_at, dead_lettered_at)
          SELECT id, body, receive_count, COALESCE(last_error, 'receives exhausted'), enqueued_at, $1
          FROM exhausted
        `, currentTime)
			if err != nil {
				return fmt.Errorf("dead-letter exhausted: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			moved = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "dead-lettered exhausted deliveries", "count", moved)
	}
	return moved, nil
}

// ExtendLease refreshes the visibility window on an inflight delivery.
// Returns false when the delivery is no longer inflight, meaning the lease
// already expired and the delivery may be running elsewhere.
func (r *ChannelRepo) ExtendLease(ctx context.Context, deliveryID string, lease time.Duration) (bool, error) {
	if deliveryID == "" {
		return false, ErrDeliveryIDRequired
	}
	if lease <= 0 {
		return false, errors.New("lease must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiresAt := currentTime.Add(lease)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE deliveries
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'inflight'
	`, deliveryID, leaseExpiresAt, currentTime)
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lease rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Ack acknowledges an inflight delivery. Returns false when the delivery was
// not inflight, typically because its lease expired and it was requeued.
func (r *ChannelRepo) Ack(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, ErrDeliveryIDRequired
	}

	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE deliveries
		SET status = 'acked',
		    acked_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'inflight'
	`, deliveryID, currentTime)
	if err != nil {
		return false, fmt.Errorf("ack delivery: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ack rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Release returns an inflight delivery to the channel for redelivery after
// the retry delay, or moves it to dead_letters once its receive count has
// reached max_receives. The decision and the move commit in one transaction
// so a delivery is never both pending and dead-lettered.
func (r *ChannelRepo) Release(ctx context.Context, deliveryID, reason string) (*core.ReleaseResult, error) {
	if deliveryID == "" {
		return nil, ErrDeliveryIDRequired
	}

	result := &core.ReleaseResult{}
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			currentTime := r.timeProvider.Now()
			nextVisibleAt := currentTime.Add(r.cfg.RetryDelay)

			var receiveCount, maxReceives int
			row := tx.QueryRowContext(ctx, `
          SELECT receive_count, max_receives FROM deliveries
          WHERE id = $1 AND status = 'inflight'
          FOR UPDATE
        `, deliveryID)
			if scanErr := row.Scan(&receiveCount, &maxReceives); scanErr != nil {
				if errors.Is(scanErr, sql.ErrNoRows) {
					return ErrDeliveryNotFound
				}
				return fmt.Errorf("lock delivery: %w", scanErr)
			}

			result.ReceiveCount = receiveCount
			result.MaxReceives = maxReceives

			if receiveCount >= maxReceives {
				result.DeadLettered = true
				if _, execErr := tx.ExecContext(ctx, `
            WITH moved AS (
              DELETE FROM deliveries WHERE id = $1
              RETURNING id, body, receive_count, enqueued_at
            )
            INSERT INTO dead_letters(delivery_id, body, receive_count, reason, enqueued_at, dead_lettered_at)
            SELECT id, body, receive_count, $2, enqueued_at, $3
            FROM moved
          `, deliveryID, reason, currentTime.UTC()); execErr != nil {
					return fmt.Errorf("dead-letter delivery: %w", execErr)
				}
				return nil
			}

			if _, execErr := tx.ExecContext(ctx, `
          UPDATE deliveries
          SET status = 'pending',
              lease_expires_at = NULL,
              last_error = $2,
              next_visible_at = $3,
              updated_at = $4
          WHERE id = $1
        `, deliveryID, reason, nextVisibleAt.UTC(), currentTime.UTC()); execErr != nil {
				return fmt.Errorf("release delivery: %w", execErr)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if result.DeadLettered && r.logger != nil {
		r.logger.WarnContext(ctx, "delivery dead-lettered",
			"delivery_id", deliveryID,
			"receive_count", result.ReceiveCount,
			"max_receives", result.MaxReceives,
			"reason", reason,
		)
	}
	return result, nil
}

// WaitForDelivery blocks until a wakeup notification arrives or ctx is done.
// The notification is advisory only; callers must still Reserve.
func (r *ChannelRepo) WaitForDelivery(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{notifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// Stats returns counts of deliveries in each state plus the dead-letter total.
func (r *ChannelRepo) Stats(ctx context.Context) (*model.ChannelStats, error) {
	var s model.ChannelStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    (SELECT count(*) FILTER (WHERE status = 'pending')  FROM deliveries) AS pending,
    (SELECT count(*) FILTER (WHERE status = 'inflight') FROM deliveries) AS inflight,
    (SELECT count(*) FILTER (WHERE status = 'acked')    FROM deliveries) AS acked,
    (SELECT count(*) FROM dead_letters)                                  AS dead_lettered
  `).Scan(
		&s.Pending,
		&s.Inflight,
		&s.Acked,
		&s.DeadLettered,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}
	return &s, nil
}

// ListDeadLetters returns dead letters newest first.
func (r *ChannelRepo) ListDeadLetters(ctx context.Context, limit int) ([]*model.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT delivery_id, body, receive_count, reason, enqueued_at, dead_lettered_at
		FROM dead_letters
		ORDER BY dead_lettered_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*model.DeadLetter
	for rows.Next() {
		var dl model.DeadLetter
		var body []byte
		if scanErr := rows.Scan(&dl.DeliveryID, &body, &dl.ReceiveCount, &dl.Reason, &dl.EnqueuedAt, &dl.DeadLetteredAt); scanErr != nil {
			return nil, fmt.Errorf("scan dead letter: %w", scanErr)
		}
		dl.Body = cloneJSON(body)
		dl.EnqueuedAt = dl.EnqueuedAt.UTC()
		dl.DeadLetteredAt = dl.DeadLetteredAt.UTC()
		letters = append(letters, &dl)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list dead letters: %w", rowsErr)
	}
	return letters, nil
}

// RequeueDeadLetter moves a dead letter back into the channel as a fresh
// delivery with a zero receive count and returns the new delivery id.
func (r *ChannelRepo) RequeueDeadLetter(ctx context.Context, deliveryID string) (string, error) {
	if deliveryID == "" {
		return "", ErrDeliveryIDRequired
	}

	newID := uuid.NewString()
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			currentTime := r.timeProvider.Now().UTC()

			res, execErr := tx.ExecContext(ctx, `
          WITH revived AS (
            DELETE FROM dead_letters WHERE delivery_id = $1
            RETURNING body
          )
          INSERT INTO deliveries(id, body, status, receive_count, max_receives, next_visible_at, enqueued_at, updated_at)
          SELECT $2, body, 'pending', 0, $3, $4, $4, $4
          FROM revived
        `, deliveryID, newID, r.cfg.MaxReceives, currentTime)
			if execErr != nil {
				return fmt.Errorf("requeue dead letter: %w", execErr)
			}

			rowsAffected, raErr := res.RowsAffected()
			if raErr != nil {
				return fmt.Errorf("rows affected: %w", raErr)
			}
			if rowsAffected == 0 {
				return model.ErrDeadLetterNotFound
			}

			if _, notifyErr := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, newID); notifyErr != nil {
				return fmt.Errorf("send delivery notification: %w", notifyErr)
			}
			return nil
		},
	})
	if err != nil {
		return "", err
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "dead letter requeued",
			"dead_letter_id", deliveryID,
			"delivery_id", newID,
		)
	}
	return newID, nil
}

// GetDelivery retrieves a delivery by its id.
func (r *ChannelRepo) GetDelivery(ctx context.Context, deliveryID string) (*model.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrDeliveryIDRequired
	}

	var delivery *model.Delivery
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+deliveryColumns+`
			FROM deliveries
			WHERE id = $1
		`, deliveryID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var cerr error
		delivery, cerr = collectDeliveryFromRows(rows)
		return cerr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return delivery, nil
}

// collectDeliveryFromRows collects a single delivery from pgx rows.
func collectDeliveryFromRows(rows pgx.Rows) (*model.Delivery, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	d, err := scanDeliveryFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return d, nil
}

type deliveryRowScanner interface {
	Scan(dest ...any) error
}

type deliveryRowData struct {
	body                    []byte
	lastError               sql.NullString
	leaseExpiresAt, ackedAt sql.NullTime
}

func (d *deliveryRowData) scanInto(scanner deliveryRowScanner, delivery *model.Delivery) error {
	return scanner.Scan(
		&delivery.ID,
		&d.body,
		&delivery.Status,
		&delivery.ReceiveCount,
		&delivery.MaxReceives,
		&d.lastError,
		&d.leaseExpiresAt,
		&delivery.EnqueuedAt,
		&d.ackedAt,
		&delivery.UpdatedAt,
	)
}

func (d *deliveryRowData) apply(delivery *model.Delivery) {
	delivery.Body = cloneJSON(d.body)
	delivery.LastError = cloneNullableString(d.lastError)
	delivery.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	delivery.AckedAt = cloneNullableTime(d.ackedAt)
}

func scanDeliveryFromRow(scanner deliveryRowScanner) (*model.Delivery, error) {
	delivery := &model.Delivery{}
	var data deliveryRowData
	if err := data.scanInto(scanner, delivery); err != nil {
		return nil, err
	}

	data.apply(delivery)
	return delivery, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
