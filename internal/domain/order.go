package domain

import "time"

// Order — размещённый заказ: упорядоченный список позиций каталога.
// Повторы допустимы на уровне модели, но отклоняются при размещении.
type Order struct {
	ID    string
	Films []Film
	// CreatedAt назначается хранилищем при первой вставке и больше не меняется.
	CreatedAt time.Time
}

// FilmIDs возвращает идентификаторы позиций в исходном порядке, включая повторы.
func (o Order) FilmIDs() []string {
	ids := make([]string, 0, len(o.Films))
	for _, f := range o.Films {
		ids = append(ids, f.ID)
	}
	return ids
}

// TotalPrice суммирует цены позиций заказа.
func (o Order) TotalPrice() int {
	total := 0
	for _, f := range o.Films {
		total += f.Price
	}
	return total
}

// OrderKey извлекает ключ идентичности заказа.
func OrderKey(o Order) string {
	return o.ID
}
