package domain

import "errors"

var (
	// ErrEmptyKey — запись без идентификатора нельзя сохранить в хранилище по ключу.
	ErrEmptyKey = errors.New("record key is empty")
	// Ошибка отсутствующего идентификатора позиции каталога.
	ErrFilmIDRequired = errors.New("film id is required")
	// Ошибка отрицательного остатка.
	ErrFilmAmountNegative = errors.New("film amount must be non-negative")
	// Ошибка отрицательной цены.
	ErrFilmPriceNegative = errors.New("film price must be non-negative")
	// ErrFilmNotFound возвращается при обновлении несуществующей позиции каталога.
	ErrFilmNotFound = errors.New("film not found")
	// ErrFilmAlreadyExists возвращается при повторном добавлении позиции с тем же ID.
	ErrFilmAlreadyExists = errors.New("film already exists")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected — заказ не прошёл проверки размещения. Причина наружу не раскрывается.
	ErrOrderRejected = errors.New("order rejected")
	// ErrTxClosed — операция над уже завершённой транзакцией.
	ErrTxClosed = errors.New("transaction already closed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsRejected проверяет, является ли ошибка бизнес-отказом размещения.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOrderRejected)
}
