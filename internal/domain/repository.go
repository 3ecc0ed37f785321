package domain

import "context"

// FilmRepository описывает хранилище каталога.
// Find не считает отсутствие записи ошибкой: возвращается ok=false.
type FilmRepository interface {
	FindAll(ctx context.Context) ([]Film, error)
	Find(ctx context.Context, id string) (Film, bool, error)
	// Save вставляет запись с новым ключом или полностью заменяет существующую.
	Save(ctx context.Context, film Film) (Film, error)
}

// OrderRepository описывает хранилище заказов.
// FindAll и Find возвращают заказы с разрешёнными позициями каталога.
type OrderRepository interface {
	FindAll(ctx context.Context) ([]Order, error)
	Find(ctx context.Context, id string) (Order, bool, error)
	// Save вставляет заказ (назначая CreatedAt) или заменяет его, сохраняя исходный CreatedAt.
	Save(ctx context.Context, order Order) (Order, error)
}

// Tx — явная единица работы над хранилищем.
// Внутри транзакции Films().Find блокирует запись до Commit/Rollback.
type Tx interface {
	Films() FilmRepository
	Orders() OrderRepository
	Outbox() OutboxWriter
	Commit() error
	// Rollback после Commit ничего не делает, поэтому его безопасно вызывать в defer.
	Rollback() error
}

// TxBeginner открывает транзакции.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}
