package catalog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/service/catalog"
	"github.com/vladislavdragonenkov/filmstore/internal/service/placement"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/memory"
)

type CatalogSuite struct {
	suite.Suite

	ctx     context.Context
	db      *memory.DB
	films   *memory.FilmRepository
	cache   *mapCache
	service *catalog.Service
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	s.ctx = context.Background()
	s.db = memory.NewDB()
	s.films = memory.NewFilmRepository(s.db)
	s.cache = newMapCache()
	s.service = catalog.NewService(s.films,
		catalog.WithCache(s.cache),
		catalog.WithLogger(log.NewEntry(logger)),
	)
}

func (s *CatalogSuite) TestAddGeneratesID() {
	saved, err := s.service.Add(s.ctx, domain.Film{Title: "Alien", Amount: 2, Price: 6})
	s.Require().NoError(err)
	s.NotEmpty(saved.ID)

	stored, ok, err := s.films.Find(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(saved, stored)
}

func (s *CatalogSuite) TestAddExistingID() {
	_, err := s.service.Add(s.ctx, domain.Film{ID: "a", Title: "Alien", Amount: 2, Price: 6})
	s.Require().NoError(err)

	_, err = s.service.Add(s.ctx, domain.Film{ID: "a", Title: "Other", Amount: 1, Price: 1})
	s.ErrorIs(err, domain.ErrFilmAlreadyExists)

	stored, _, err := s.films.Find(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("Alien", stored.Title)
}

func (s *CatalogSuite) TestAddInvalid() {
	_, err := s.service.Add(s.ctx, domain.Film{ID: "a", Amount: -1, Price: -1})
	s.ErrorIs(err, domain.ErrFilmAmountNegative)
	s.ErrorIs(err, domain.ErrFilmPriceNegative)

	all, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *CatalogSuite) TestGetReadsThroughCache() {
	_, err := s.films.Save(s.ctx, domain.Film{ID: "a", Title: "Alien", Amount: 2, Price: 6})
	s.Require().NoError(err)

	got, ok, err := s.service.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("Alien", got.Title)
	s.Contains(s.cache.items, "a")

	s.cache.items["a"] = domain.Film{ID: "a", Title: "cached"}
	got, ok, err = s.service.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("cached", got.Title)
}

func (s *CatalogSuite) TestGetMissing() {
	_, ok, err := s.service.Get(s.ctx, "missing")
	s.Require().NoError(err)
	s.False(ok)
	s.NotContains(s.cache.items, "missing")
}

func (s *CatalogSuite) TestGetIgnoresCacheFailure() {
	_, err := s.films.Save(s.ctx, domain.Film{ID: "a", Title: "Alien", Amount: 2, Price: 6})
	s.Require().NoError(err)
	s.cache.err = errors.New("redis down")

	got, ok, err := s.service.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("Alien", got.Title)
}

func (s *CatalogSuite) TestUpdate() {
	_, err := s.service.Add(s.ctx, domain.Film{ID: "a", Title: "Alien", Amount: 2, Price: 6})
	s.Require().NoError(err)
	_, _, err = s.service.Get(s.ctx, "a")
	s.Require().NoError(err)

	updated, err := s.service.Update(s.ctx, domain.Film{ID: "a", Title: "Aliens", Amount: 7, Price: 8})
	s.Require().NoError(err)
	s.Equal("Aliens", updated.Title)
	s.NotContains(s.cache.items, "a")

	got, _, err := s.service.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(7, got.Amount)
}

func (s *CatalogSuite) TestUpdateMissing() {
	_, err := s.service.Update(s.ctx, domain.Film{ID: "ghost", Amount: 1})
	s.ErrorIs(err, domain.ErrFilmNotFound)
}

func (s *CatalogSuite) TestInvalidateOrder() {
	s.cache.items["a"] = domain.Film{ID: "a"}
	s.cache.items["b"] = domain.Film{ID: "b"}
	s.cache.items["c"] = domain.Film{ID: "c"}

	s.service.InvalidateOrder(s.ctx, domain.Order{ID: "o", Films: []domain.Film{{ID: "a"}, {ID: "b"}}})

	s.NotContains(s.cache.items, "a")
	s.NotContains(s.cache.items, "b")
	s.Contains(s.cache.items, "c")
}

func (s *CatalogSuite) TestGetDoesNotCacheStockChangedByConcurrentOrder() {
	_, err := s.service.Add(s.ctx, domain.Film{ID: "x", Title: "Heat", Amount: 1, Price: 15})
	s.Require().NoError(err)

	engine := placement.NewEngine(s.db, placement.WithAfterCommit(s.service.InvalidateOrder))
	s.cache.beforeSet = func() {
		result, err := engine.PlaceOrder(s.ctx, domain.Order{Films: []domain.Film{{ID: "x"}}})
		s.Require().NoError(err)
		s.Require().True(result.Accepted())
	}

	// Значение прочитано до фиксации заказа и возвращается как есть.
	got, ok, err := s.service.Get(s.ctx, "x")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(1, got.Amount)
	s.NotContains(s.cache.items, "x")

	got, ok, err = s.service.Get(s.ctx, "x")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(0, got.Amount)

	stored, _, err := s.films.Find(s.ctx, "x")
	s.Require().NoError(err)
	s.Equal(0, stored.Amount)
	s.Equal(0, s.cache.items["x"].Amount)
}

func (s *CatalogSuite) TestGetSkipsCacheWriteWhenVersionUnavailable() {
	_, err := s.service.Add(s.ctx, domain.Film{ID: "v", Title: "Ran", Amount: 2, Price: 6})
	s.Require().NoError(err)

	s.cache.versionErr = errors.New("redis timeout")
	got, ok, err := s.service.Get(s.ctx, "v")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(2, got.Amount)
	s.NotContains(s.cache.items, "v")
}

func TestService_WithoutCache(t *testing.T) {
	films := memory.NewFilmRepository(memory.NewDB())
	service := catalog.NewService(films)

	saved, err := service.Add(context.Background(), domain.Film{Title: "Brazil", Amount: 1, Price: 5})
	require.NoError(t, err)

	got, ok, err := service.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, saved, got)

	service.InvalidateOrder(context.Background(), domain.Order{Films: []domain.Film{saved}})
}

type mapCache struct {
	mu       sync.Mutex
	items    map[string]domain.Film
	versions map[string]int64
	err      error
	// versionErr ломает только чтение поколения.
	versionErr error
	// beforeSet выполняется один раз между чтением из хранилища и записью в кэш.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]domain.Film), versions: make(map[string]int64)}
}

func (c *mapCache) Get(_ context.Context, id string) (domain.Film, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return domain.Film{}, false, c.err
	}
	f, ok := c.items[id]
	return f, ok, nil
}

func (c *mapCache) Version(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.versionErr != nil {
		return 0, c.versionErr
	}
	return c.versions[id], nil
}

func (c *mapCache) SetIfVersion(_ context.Context, film domain.Film, version int64) (bool, error) {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.versions[film.ID] != version {
		return false, nil
	}
	c.items[film.ID] = film
	return true, nil
}

func (c *mapCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for _, id := range ids {
		delete(c.items, id)
		c.versions[id]++
	}
	return nil
}
