package tasksvc

import (
	"strings"
)

// ListParams are the raw list query parameters. Any of them may be empty
// or hold stale values from a client's URL.
type ListParams struct {
	Status   string
	Priority string
	Search   string
	SortBy   string
	Order    string
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortPriority  SortField = "priority"
	SortDueDate   SortField = "dueDate"
)

func (f SortField) Valid() bool {
	switch f {
	case SortCreatedAt, SortUpdatedAt, SortTitle, SortPriority, SortDueDate:
		return true
	}
	return false
}

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Query is the filter and total order a list request runs with. OwnerID
// is always set; empty Status, Priority and Search mean no constraint.
type Query struct {
	OwnerID  string
	Status   Status
	Priority Priority
	Search   string
	Sort     SortField
	Order    Order
}

// BuildQuery never fails: unknown enum values are dropped and unknown
// sort settings fall back to newest first.
func BuildQuery(ownerID string, p ListParams) Query {
	q := Query{
		OwnerID: ownerID,
		Sort:    SortCreatedAt,
		Order:   OrderDesc,
	}
	if s := Status(p.Status); s.Valid() {
		q.Status = s
	}
	if pr := Priority(p.Priority); pr.Valid() {
		q.Priority = pr
	}
	if strings.TrimSpace(p.Search) != "" {
		q.Search = p.Search
	}
	if f := SortField(p.SortBy); f.Valid() {
		q.Sort = f
	}
	if p.Order == string(OrderAsc) {
		q.Order = OrderAsc
	}
	return q
}

// Match reports whether t satisfies every conjunct of q.
func (q Query) Match(t Task) bool {
	if t.UserID != q.OwnerID {
		return false
	}
	if q.Status != "" && t.Status != q.Status {
		return false
	}
	if q.Priority != "" && t.Priority != q.Priority {
		return false
	}
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

// Less orders a before b under q, breaking ties by ascending id.
func (q Query) Less(a, b Task) bool {
	c := q.compare(a, b)
	if c == 0 {
		return a.ID < b.ID
	}
	if q.Order == OrderAsc {
		return c < 0
	}
	return c > 0
}

func (q Query) compare(a, b Task) int {
	switch q.Sort {
	case SortTitle:
		return strings.Compare(a.Title, b.Title)
	case SortPriority:
		return a.Priority.rank() - b.Priority.rank()
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return -1
		case b.DueDate == nil:
			return 1
		}
		return a.DueDate.Compare(*b.DueDate)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}
