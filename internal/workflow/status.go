package workflow

import "sort"

// Status is one of the fixed order lifecycle states. Statuses are process-wide
// constants; nothing creates or destroys them at runtime.
type Status struct {
	ID        int32
	Name      string
	Code      string
	SortOrder int32
}

var (
	Pending   = Status{ID: 1, Name: "Pending", Code: "PENDING", SortOrder: 1}
	Confirmed = Status{ID: 2, Name: "Confirmed", Code: "CONFIRMED", SortOrder: 2}
	Shipping  = Status{ID: 3, Name: "Shipping", Code: "SHIPPING", SortOrder: 3}
	Delivered = Status{ID: 4, Name: "Delivered", Code: "DELIVERED", SortOrder: 4}
	Cancelled = Status{ID: 5, Name: "Cancelled", Code: "CANCELLED", SortOrder: 5}
	Returned  = Status{ID: 6, Name: "Returned", Code: "RETURNED", SortOrder: 6}

	// Completed was retrofitted after Cancelled/Returned already took IDs 5-6,
	// so its ID is 8 while it sorts as the seventh state.
	Completed = Status{ID: 8, Name: "Completed", Code: "COMPLETED", SortOrder: 7}
)

var statuses = []Status{Pending, Confirmed, Shipping, Delivered, Cancelled, Returned, Completed}

var (
	byID   = make(map[int32]Status, len(statuses))
	byCode = make(map[string]Status, len(statuses))
)

func init() {
	for _, s := range statuses {
		byID[s.ID] = s
		byCode[s.Code] = s
	}
}

// ByID returns the status with the given numeric ID.
func ByID(id int32) (Status, bool) {
	s, ok := byID[id]
	return s, ok
}

// ByCode returns the status with the given stable code.
func ByCode(code string) (Status, bool) {
	s, ok := byCode[code]
	return s, ok
}

// All returns every status sorted by sort order.
func All() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// IsTerminal reports whether no transition may ever leave the status.
func (s Status) IsTerminal() bool {
	return s == Cancelled || s == Returned
}
