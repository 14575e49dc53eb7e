// Package bulk implements the partial-failure execution pattern shared by
// multi-item administrative operations. Items are processed independently;
// one bad item never aborts the rest.
package bulk

// Error records a single failed item.
type Error struct {
	ID      string `json:"id"`
	Message string `json:"error_message"`
}

// Result summarises a bulk operation. SuccessCount+ErrorCount always
// equals TotalCount and Errors preserves input order.
type Result struct {
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	TotalCount   int     `json:"total_count"`
	Errors       []Error `json:"errors"`
}

// Run applies op to every item sequentially, capturing per-item failures.
func Run[T any](items []T, key func(T) string, op func(T) error) Result {
	result := Result{TotalCount: len(items), Errors: []Error{}}
	for _, item := range items {
		if err := op(item); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, Error{ID: key(item), Message: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	return result
}
