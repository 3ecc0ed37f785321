// Package catalog управляет позициями каталога поверх FilmRepository.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// Service — операции каталога, которые не относятся к размещению заказов.
type Service struct {
	films  domain.FilmRepository
	cache  domain.FilmCache
	logger *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithCache включает кэш чтения.
func WithCache(cache domain.FilmCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис каталога.
func NewService(films domain.FilmRepository, options ...Option) *Service {
	s := &Service{
		films:  films,
		logger: log.WithField("component", "catalog"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Add добавляет новую позицию. Пустой ID генерируется.
func (s *Service) Add(ctx context.Context, film domain.Film) (domain.Film, error) {
	if film.ID == "" {
		film.ID = uuid.NewString()
	}
	if err := validate(film); err != nil {
		return domain.Film{}, err
	}

	_, exists, err := s.films.Find(ctx, film.ID)
	if err != nil {
		return domain.Film{}, fmt.Errorf("check film %q: %w", film.ID, err)
	}
	if exists {
		return domain.Film{}, domain.ErrFilmAlreadyExists
	}

	saved, err := s.films.Save(ctx, film)
	if err != nil {
		return domain.Film{}, fmt.Errorf("add film %q: %w", film.ID, err)
	}

	s.logger.WithField("film_id", saved.ID).Info("film added")
	return saved, nil
}

// Get возвращает позицию по ID. Ошибка кэша не прерывает чтение из хранилища.
func (s *Service) Get(ctx context.Context, id string) (domain.Film, bool, error) {
	cacheable := false
	var version int64
	if s.cache != nil {
		film, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("film_id", id).Warn("film cache read failed")
		case ok:
			return film, true, nil
		default:
			// Поколение читается до хранилища: инвалидация после этой точки отменит запись.
			version, err = s.cache.Version(ctx, id)
			if err != nil {
				s.logger.WithError(err).WithField("film_id", id).Warn("film cache version read failed")
			} else {
				cacheable = true
			}
		}
	}

	film, ok, err := s.films.Find(ctx, id)
	if err != nil {
		return domain.Film{}, false, fmt.Errorf("get film %q: %w", id, err)
	}
	if !ok {
		return domain.Film{}, false, nil
	}

	if cacheable {
		stored, err := s.cache.SetIfVersion(ctx, film, version)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("film_id", id).Warn("film cache write failed")
		case !stored:
			s.logger.WithField("film_id", id).Debug("film changed during read, cache write skipped")
		}
	}
	return film, true, nil
}

// List возвращает все позиции каталога.
func (s *Service) List(ctx context.Context) ([]domain.Film, error) {
	films, err := s.films.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list films: %w", err)
	}
	return films, nil
}

// Update полностью заменяет существующую позицию.
func (s *Service) Update(ctx context.Context, film domain.Film) (domain.Film, error) {
	if err := validate(film); err != nil {
		return domain.Film{}, err
	}

	_, exists, err := s.films.Find(ctx, film.ID)
	if err != nil {
		return domain.Film{}, fmt.Errorf("check film %q: %w", film.ID, err)
	}
	if !exists {
		return domain.Film{}, domain.ErrFilmNotFound
	}

	saved, err := s.films.Save(ctx, film)
	if err != nil {
		return domain.Film{}, fmt.Errorf("update film %q: %w", film.ID, err)
	}

	s.Invalidate(ctx, saved)
	s.logger.WithField("film_id", saved.ID).Info("film updated")
	return saved, nil
}

// Invalidate сбрасывает закэшированные позиции. Используется как after-commit хук размещения.
func (s *Service) Invalidate(ctx context.Context, films ...domain.Film) {
	if s.cache == nil || len(films) == 0 {
		return
	}

	ids := make([]string, 0, len(films))
	for _, f := range films {
		ids = append(ids, f.ID)
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.WithError(err).WithField("films", ids).Warn("film cache invalidation failed")
	}
}

// InvalidateOrder сбрасывает кэш позиций, остаток которых изменил заказ.
func (s *Service) InvalidateOrder(ctx context.Context, order domain.Order) {
	s.Invalidate(ctx, order.Films...)
}

func validate(film domain.Film) error {
	return errors.Join(film.ValidateInvariants()...)
}
