// Package identity реализует сохранение записей по ключу идентичности:
// запись с новым ключом вставляется, с известным — полностью заменяется.
package identity

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// Mapper связывает тип записи с конкретным хранилищем.
type Mapper[T any] interface {
	// Key извлекает ключ идентичности.
	Key(rec T) string
	// Find возвращает запись по ключу; отсутствие записи — это ok=false, а не ошибка.
	Find(ctx context.Context, key string) (T, bool, error)
	// Insert сохраняет запись с ключом, которого ещё нет в хранилище.
	Insert(ctx context.Context, rec T) (T, error)
	// Replace полностью перезаписывает существующую запись.
	Replace(ctx context.Context, rec T) (T, error)
}

// Store — upsert по ключу поверх Mapper.
// Ошибки хранилища оборачиваются и возвращаются без повторов.
type Store[T any] struct {
	mapper Mapper[T]
	kind   string
}

// New создаёт Store. kind используется только в текстах ошибок.
func New[T any](kind string, mapper Mapper[T]) *Store[T] {
	return &Store[T]{mapper: mapper, kind: kind}
}

// Find возвращает запись по ключу.
func (s *Store[T]) Find(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if key == "" {
		return zero, false, nil
	}

	rec, ok, err := s.mapper.Find(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("find %s %q: %w", s.kind, key, err)
	}
	return rec, ok, nil
}

// Save вставляет запись, если её ключ ещё не встречался, иначе заменяет её.
// Возвращает сохранённое состояние, включая поля, назначенные хранилищем.
func (s *Store[T]) Save(ctx context.Context, rec T) (T, error) {
	var zero T

	key := s.mapper.Key(rec)
	if key == "" {
		return zero, fmt.Errorf("save %s: %w", s.kind, domain.ErrEmptyKey)
	}

	_, exists, err := s.mapper.Find(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("find %s %q before save: %w", s.kind, key, err)
	}

	if !exists {
		saved, err := s.mapper.Insert(ctx, rec)
		if err != nil {
			return zero, fmt.Errorf("insert %s %q: %w", s.kind, key, err)
		}
		return saved, nil
	}

	saved, err := s.mapper.Replace(ctx, rec)
	if err != nil {
		return zero, fmt.Errorf("replace %s %q: %w", s.kind, key, err)
	}
	return saved, nil
}
