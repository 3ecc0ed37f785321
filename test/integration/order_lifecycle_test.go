package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/service/catalog"
	"github.com/vladislavdragonenkov/filmstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/filmstore/internal/service/placement"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/memory"
)

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

// OrderLifecycleTestSuite проверяет путь заказа от каталога до события в брокере.
type OrderLifecycleTestSuite struct {
	suite.Suite
	db        *memory.DB
	catalog   *catalog.Service
	orders    domain.OrderRepository
	engine    *placement.Engine
	worker    *outbox.Worker
	publisher *recordingPublisher
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.db = memory.NewDB()
	suite.orders = memory.NewOrderRepository(suite.db)
	suite.catalog = catalog.NewService(memory.NewFilmRepository(suite.db), catalog.WithLogger(logger))
	suite.engine = placement.NewEngine(suite.db,
		placement.WithLogger(logger),
		placement.WithAfterCommit(suite.catalog.InvalidateOrder),
	)
	suite.publisher = &recordingPublisher{}
	suite.worker = outbox.NewWorker(memory.NewOutboxRepository(suite.db), suite.publisher,
		outbox.WithLogger(logger),
		outbox.WithRetryBaseDelay(0),
	)
}

func (suite *OrderLifecycleTestSuite) addFilm(id string, amount, price int) {
	_, err := suite.catalog.Add(context.Background(), domain.Film{ID: id, Title: "Film " + id, Amount: amount, Price: price})
	suite.Require().NoError(err)
}

func (suite *OrderLifecycleTestSuite) amount(id string) int {
	film, ok, err := suite.catalog.Get(context.Background(), id)
	suite.Require().NoError(err)
	suite.Require().True(ok, "film %s must exist", id)
	return film.Amount
}

func candidate(ids ...string) domain.Order {
	films := make([]domain.Film, 0, len(ids))
	for _, id := range ids {
		films = append(films, domain.Film{ID: id})
	}
	return domain.Order{Films: films}
}

// TestAcceptedOrderLifecycle: размещение, списание остатков и доставка события.
func (suite *OrderLifecycleTestSuite) TestAcceptedOrderLifecycle() {
	ctx := context.Background()
	suite.addFilm("f1", 3, 6)
	suite.addFilm("f2", 1, 4)

	result, err := suite.engine.PlaceOrder(ctx, candidate("f1", "f2"))
	suite.Require().NoError(err)
	suite.Require().True(result.Accepted())
	suite.NotEmpty(result.Order.ID)

	suite.Equal(2, suite.amount("f1"))
	suite.Equal(0, suite.amount("f2"))

	stored, ok, err := suite.orders.Find(ctx, result.Order.ID)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Equal([]string{"f1", "f2"}, stored.FilmIDs())
	suite.False(stored.CreatedAt.IsZero())

	batch := suite.worker.ProcessOnce(ctx)
	suite.Equal(1, batch.Sent)
	suite.Equal(0, batch.Failed)

	events := suite.publisher.published()
	suite.Require().Len(events, 1)
	suite.Equal(domain.EventTypeOrderPlaced, events[0].EventType)
	suite.Equal(result.Order.ID, events[0].AggregateID)

	var payload placement.OrderPlacedEvent
	suite.Require().NoError(json.Unmarshal(events[0].Payload, &payload))
	suite.Equal(result.Order.ID, payload.OrderID)
	suite.Equal(10, payload.TotalPrice)

	// Повторный проход не публикует уже доставленное событие.
	suite.Equal(0, suite.worker.ProcessOnce(ctx).Sent)
}

// TestRejectedOrdersLeaveNoTrace: отказ не меняет остатки и не создаёт событий.
func (suite *OrderLifecycleTestSuite) TestRejectedOrdersLeaveNoTrace() {
	ctx := context.Background()
	suite.addFilm("cheap", 5, 2)
	suite.addFilm("empty", 0, 20)

	rejected := []domain.Order{
		candidate(),
		candidate("cheap", "cheap"),
		candidate("cheap", "missing"),
		candidate("empty"),
		candidate("cheap"),
	}
	for _, c := range rejected {
		result, err := suite.engine.PlaceOrder(ctx, c)
		suite.Require().NoError(err)
		suite.Equal(placement.OutcomeRejected, result.Outcome, "candidate %v", c.FilmIDs())
	}

	suite.Equal(5, suite.amount("cheap"))
	suite.Equal(0, suite.amount("empty"))

	orders, err := suite.orders.FindAll(ctx)
	suite.Require().NoError(err)
	suite.Empty(orders)
	suite.Equal(0, suite.worker.ProcessOnce(ctx).Sent)
}

// TestConcurrentOrdersNeverOversell: конкурентные заказы не уводят остаток в минус.
func (suite *OrderLifecycleTestSuite) TestConcurrentOrdersNeverOversell() {
	ctx := context.Background()
	const stock = 5
	suite.addFilm("a", stock, 5)
	suite.addFilm("b", stock, 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"a", "b"}
			if i%2 == 1 {
				ids = []string{"b", "a"}
			}
			result, err := suite.engine.PlaceOrder(ctx, candidate(ids...))
			if err != nil {
				suite.T().Errorf("place order: %v", err)
				return
			}
			if result.Accepted() {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	suite.Equal(stock, accepted)
	suite.Equal(0, suite.amount("a"))
	suite.Equal(0, suite.amount("b"))

	batch := suite.worker.ProcessOnce(ctx)
	suite.Equal(stock, batch.Sent)
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
