// Package placement размещает заказы: проверяет кандидата, списывает остатки
// и сохраняет заказ в одной транзакции хранилища.
package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// Outcome — результат размещения.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed сопровождается ненулевой ошибкой инфраструктуры.
	OutcomeFailed Outcome = "failed"
)

// Placement — итог PlaceOrder. Order заполнен только для OutcomeAccepted.
type Placement struct {
	Outcome Outcome
	Order   domain.Order
}

// Accepted сообщает, был ли заказ размещён.
func (p Placement) Accepted() bool {
	return p.Outcome == OutcomeAccepted
}

// MetricsRecorder принимает результаты размещения.
type MetricsRecorder interface {
	RecordAccepted()
	RecordRejected(rule string)
	RecordFailed()
	RecordDuration(duration time.Duration)
}

// AfterCommitFunc вызывается после успешной фиксации заказа.
type AfterCommitFunc func(ctx context.Context, order domain.Order)

// EngineOptions задаёт параметры Engine.
type EngineOptions struct {
	Logger      *log.Entry
	Metrics     MetricsRecorder
	Pairing     PairingPolicy
	AfterCommit []AfterCommitFunc
	NewID       func() string
}

// Option настраивает Engine.
type Option func(*EngineOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(opts *EngineOptions) {
		opts.Metrics = metrics
	}
}

// WithStrictPairing включает строгую проверку чётности.
func WithStrictPairing(strict bool) Option {
	return func(opts *EngineOptions) {
		if strict {
			opts.Pairing = PairingStrict
		} else {
			opts.Pairing = PairingLenient
		}
	}
}

// WithAfterCommit добавляет хук, вызываемый после фиксации заказа.
func WithAfterCommit(fn AfterCommitFunc) Option {
	return func(opts *EngineOptions) {
		if fn != nil {
			opts.AfterCommit = append(opts.AfterCommit, fn)
		}
	}
}

// WithIDGenerator задаёт генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(opts *EngineOptions) {
		opts.NewID = newID
	}
}

// Engine размещает заказы.
type Engine struct {
	txs         domain.TxBeginner
	logger      *log.Entry
	metrics     MetricsRecorder
	pairing     PairingPolicy
	afterCommit []AfterCommitFunc
	newID       func() string
}

// NewEngine создаёт Engine поверх транзакционного хранилища.
func NewEngine(txs domain.TxBeginner, options ...Option) *Engine {
	opts := EngineOptions{Pairing: PairingLenient}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "placement")
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Engine{
		txs:         txs,
		logger:      logger,
		metrics:     opts.Metrics,
		pairing:     opts.Pairing,
		afterCommit: opts.AfterCommit,
		newID:       newID,
	}
}

// PlaceOrder проверяет кандидата и, если все правила выполнены, списывает остатки
// и сохраняет заказ атомарно. Кандидат несёт только ссылки на позиции каталога:
// цены и остатки читаются из хранилища, идентификатор заказа назначается заново.
//
// Отказ возвращается как OutcomeRejected без ошибки и не оставляет следов в хранилище.
// Ошибка инфраструктуры возвращается вместе с OutcomeFailed.
func (e *Engine) PlaceOrder(ctx context.Context, candidate domain.Order) (Placement, error) {
	start := time.Now()
	ids := candidate.FilmIDs()

	result, rule, err := e.place(ctx, ids)
	e.record(result.Outcome, rule, time.Since(start))

	entry := e.logger.WithFields(log.Fields{
		"films":   len(ids),
		"outcome": result.Outcome,
	})
	switch result.Outcome {
	case OutcomeAccepted:
		entry.WithField("order_id", result.Order.ID).Info("order placed")
	case OutcomeRejected:
		entry.WithField("rule", rule).Info("order rejected")
	default:
		entry.WithError(err).Error("order placement failed")
	}

	return result, err
}

func (e *Engine) place(ctx context.Context, ids []string) (Placement, Rule, error) {
	if rule, ok := checkCandidate(ids, e.pairing); !ok {
		return Placement{Outcome: OutcomeRejected}, rule, nil
	}

	tx, err := e.txs.BeginTx(ctx)
	if err != nil {
		return failed(fmt.Errorf("begin placement tx: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.WithError(rbErr).Warn("placement rollback failed")
		}
	}()

	films := tx.Films()
	stored := make(map[string]domain.Film, len(ids))
	for _, id := range lockOrder(ids) {
		f, ok, err := films.Find(ctx, id)
		if err != nil {
			return failed(fmt.Errorf("lock film %q: %w", id, err))
		}
		if ok {
			stored[id] = f
		}
	}

	remaining, rule, ok := reserveStock(ids, stored)
	if !ok {
		return Placement{Outcome: OutcomeRejected}, rule, nil
	}
	if rule, ok := checkMinimumValue(ids, stored); !ok {
		return Placement{Outcome: OutcomeRejected}, rule, nil
	}

	for _, id := range lockOrder(ids) {
		if _, err := films.Save(ctx, remaining[id]); err != nil {
			return failed(fmt.Errorf("save film %q: %w", id, err))
		}
	}

	refs := make([]domain.Film, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.Film{ID: id})
	}
	order, err := tx.Orders().Save(ctx, domain.Order{ID: e.newID(), Films: refs})
	if err != nil {
		return failed(fmt.Errorf("save order: %w", err))
	}

	msg, err := orderPlacedMessage(order)
	if err != nil {
		return failed(err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return failed(fmt.Errorf("enqueue order placed event: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return failed(fmt.Errorf("commit placement: %w", err))
	}
	committed = true

	// Заказ уже зафиксирован: отмена запроса не должна прерывать хуки.
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range e.afterCommit {
		hook(hookCtx, order)
	}

	return Placement{Outcome: OutcomeAccepted, Order: order}, "", nil
}

func failed(err error) (Placement, Rule, error) {
	return Placement{Outcome: OutcomeFailed}, "", err
}

func (e *Engine) record(outcome Outcome, rule Rule, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	switch outcome {
	case OutcomeAccepted:
		e.metrics.RecordAccepted()
	case OutcomeRejected:
		e.metrics.RecordRejected(string(rule))
	default:
		e.metrics.RecordFailed()
	}
	e.metrics.RecordDuration(duration)
}

// OrderPlacedEvent — полезная нагрузка события OrderPlaced.
type OrderPlacedEvent struct {
	OrderID    string    `json:"order_id"`
	FilmIDs    []string  `json:"film_ids"`
	TotalPrice int       `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

func orderPlacedMessage(order domain.Order) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(OrderPlacedEvent{
		OrderID:    order.ID,
		FilmIDs:    order.FilmIDs(),
		TotalPrice: order.TotalPrice(),
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order placed event: %w", err)
	}

	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	}, nil
}
