package placement

import (
	"sort"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

const (
	// MaxDistinctItems — максимальное число различных позиций в заказе.
	MaxDistinctItems = 3
	// MinOrderValue — минимальная сумма заказа в целых денежных единицах.
	MinOrderValue = 10
)

// Rule называет проверку, на которой заказ был отклонён. Используется только в логах и метриках.
type Rule string

const (
	RuleEmpty        Rule = "empty"
	RuleDuplicate    Rule = "duplicate"
	RuleTooManyItems Rule = "too_many_items"
	RuleUnpaired     Rule = "unpaired"
	RuleUnknownFilm  Rule = "unknown_film"
	RuleOutOfStock   Rule = "out_of_stock"
	RuleMinimumValue Rule = "minimum_value"
)

// PairingPolicy задаёт поведение проверки чётности количества ссылок на позицию.
type PairingPolicy int

const (
	// PairingLenient отклоняет нечётное количество ссылок больше одной.
	PairingLenient PairingPolicy = iota
	// PairingStrict отклоняет любое нечётное количество ссылок, включая одиночные.
	PairingStrict
)

func (p PairingPolicy) String() string {
	if p == PairingStrict {
		return "strict"
	}
	return "lenient"
}

// checkCandidate выполняет проверки, которым не нужно хранилище. Порядок важен:
// первая сработавшая проверка определяет причину отказа.
func checkCandidate(ids []string, pairing PairingPolicy) (Rule, bool) {
	if len(ids) == 0 {
		return RuleEmpty, false
	}

	counts := countRefs(ids)
	if len(counts) < len(ids) {
		return RuleDuplicate, false
	}
	if len(counts) > MaxDistinctItems {
		return RuleTooManyItems, false
	}
	if !paired(counts, pairing) {
		return RuleUnpaired, false
	}

	return "", true
}

func countRefs(ids []string) map[string]int {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	return counts
}

func paired(counts map[string]int, pairing PairingPolicy) bool {
	for _, n := range counts {
		if n%2 == 0 {
			continue
		}
		if pairing == PairingStrict || n > 1 {
			return false
		}
	}
	return true
}

// reserveStock проходит исходный список ссылок и уменьшает остаток на копиях
// авторитетных записей. Возвращает записи после списания.
func reserveStock(ids []string, stored map[string]domain.Film) (map[string]domain.Film, Rule, bool) {
	remaining := make(map[string]domain.Film, len(stored))
	for id, f := range stored {
		remaining[id] = f
	}

	for _, id := range ids {
		f, ok := remaining[id]
		if !ok {
			return nil, RuleUnknownFilm, false
		}
		if f.Amount < 1 {
			return nil, RuleOutOfStock, false
		}
		f.Amount--
		remaining[id] = f
	}

	return remaining, "", true
}

// checkMinimumValue суммирует авторитетные цены по исходному списку ссылок.
func checkMinimumValue(ids []string, stored map[string]domain.Film) (Rule, bool) {
	total := 0
	for _, id := range ids {
		total += stored[id].Price
	}
	if total < MinOrderValue {
		return RuleMinimumValue, false
	}
	return "", true
}

// lockOrder возвращает различные идентификаторы по возрастанию.
// Все транзакции блокируют строки в одном порядке, поэтому пересекающиеся заказы не взаимоблокируются.
func lockOrder(ids []string) []string {
	counts := countRefs(ids)
	distinct := make([]string, 0, len(counts))
	for id := range counts {
		distinct = append(distinct, id)
	}
	sort.Strings(distinct)
	return distinct
}
