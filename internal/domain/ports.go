package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxWriter ставит событие в outbox в рамках текущей транзакции.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	OutboxWriter
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// FilmCache — необязательный кэш чтения позиций каталога.
//
// Каждая позиция имеет поколение: Invalidate увеличивает его, а SetIfVersion
// записывает значение только если поколение не менялось с момента чтения Version.
// Так чтение, начатое до фиксации заказа, не вернёт в кэш старый остаток.
type FilmCache interface {
	Get(ctx context.Context, id string) (Film, bool, error)
	Version(ctx context.Context, id string) (int64, error)
	SetIfVersion(ctx context.Context, film Film, version int64) (bool, error)
	Invalidate(ctx context.Context, ids ...string) error
}

const (
	// AggregateTypeOrder — тип агрегата для событий заказа.
	AggregateTypeOrder = "order"
	// EventTypeOrderPlaced — заказ размещён и сток списан.
	EventTypeOrderPlaced = "OrderPlaced"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
