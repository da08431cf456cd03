package shared

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListWindow is a clamped limit/offset pair for list queries.
type ListWindow struct {
	Limit  int
	Offset int
}

// NewListWindow clamps the requested limit and offset. A zero or oversized
// limit falls back to the default page size.
func NewListWindow(limit, offset int) ListWindow {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return ListWindow{Limit: limit, Offset: offset}
}
