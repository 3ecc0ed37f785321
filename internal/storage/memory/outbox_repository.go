package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

type outboxView struct {
	st  *state
	now func() time.Time
}

func newOutboxView(st *state, now func() time.Time) *outboxView {
	return &outboxView{st: st, now: now}
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (v *outboxView) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := v.now().UTC()
	v.st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

func (v *outboxView) mark(id, status string) error {
	record, ok := v.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = v.now().UTC()
	v.st.outbox[id] = record
	return nil
}

func (v *outboxView) pending() []outboxRecord {
	result := make([]outboxRecord, 0)
	for _, rec := range v.st.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].createdAt.Equal(result[j].createdAt) {
			return result[i].createdAt.Before(result[j].createdAt)
		}
		return result[i].msg.ID < result[j].msg.ID
	})
	return result
}

// OutboxRepository — in-memory хранилище transactional outbox.
type OutboxRepository struct {
	db *DB
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue ставит событие в outbox вне бизнес-транзакции.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return withTx(ctx, r.db, func(tx *Tx) (domain.OutboxMessage, error) {
		return tx.Outbox().Enqueue(ctx, msg)
	})
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	records := newOutboxView(r.db.snapshot(), r.db.now).pending()
	if len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	records := newOutboxView(r.db.snapshot(), r.db.now).pending()

	stats := domain.OutboxStats{PendingCount: len(records)}
	if len(records) > 0 {
		stats.OldestPendingAt = records[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusFailed)
}

func (r *OutboxRepository) markStatus(ctx context.Context, id, status string) error {
	_, err := withTx(ctx, r.db, func(tx *Tx) (struct{}, error) {
		return struct{}{}, newOutboxView(tx.staged, r.db.now).mark(id, status)
	})
	return err
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	records := newOutboxView(r.db.snapshot(), r.db.now).pending()
	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result
}

var (
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
	_ domain.OutboxWriter     = (*outboxView)(nil)
)
