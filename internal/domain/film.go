package domain

// Film — позиция каталога, которую можно включить в заказ.
type Film struct {
	// ID — неизменяемый идентификатор, единственный ключ равенства.
	ID    string
	Title string
	// Director, Cast и DurationMinutes носят описательный характер и не участвуют в бизнес-правилах.
	Director        string
	Cast            string
	DurationMinutes int
	// Amount — остаток на складе.
	Amount int
	// Price — цена в целых денежных единицах.
	Price int
}

// ValidateInvariants проверяет инварианты записи каталога.
func (f Film) ValidateInvariants() []error {
	var errs []error

	if f.ID == "" {
		errs = append(errs, ErrFilmIDRequired)
	}
	if f.Amount < 0 {
		errs = append(errs, ErrFilmAmountNegative)
	}
	if f.Price < 0 {
		errs = append(errs, ErrFilmPriceNegative)
	}

	return errs
}

// FilmKey извлекает ключ идентичности записи каталога.
func FilmKey(f Film) string {
	return f.ID
}
