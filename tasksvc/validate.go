package tasksvc

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
)

// Payload is the create/update body as sent by the client.
type Payload struct {
	Title       Optional[string]   `json:"title"`
	Description Optional[string]   `json:"description"`
	Status      Optional[string]   `json:"status"`
	Priority    Optional[string]   `json:"priority"`
	DueDate     Optional[string]   `json:"dueDate"`
	Tags        Optional[[]string] `json:"tags"`
}

// MarshalJSON omits fields that were never set so that a round trip
// through the wire keeps their absence.
func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	put := func(key string, set bool, v interface{}) {
		if set {
			m[key] = v
		}
	}
	put("title", p.Title.Set, p.Title)
	put("description", p.Description.Set, p.Description)
	put("status", p.Status.Set, p.Status)
	put("priority", p.Priority.Set, p.Priority)
	put("dueDate", p.DueDate.Set, p.DueDate)
	put("tags", p.Tags.Set, p.Tags)
	return json.Marshal(m)
}

// TaskInput is a payload that passed Validate.
type TaskInput struct {
	Title       Optional[string]
	Description Optional[string]
	Status      Optional[Status]
	Priority    Optional[Priority]
	DueDate     Optional[time.Time]
	Tags        Optional[[]string]
}

// Payload converts validated input back to its wire form.
func (in TaskInput) Payload() Payload {
	p := Payload{
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
	}
	if in.Status.Set {
		p.Status = Optional[string]{Set: true, Null: in.Status.Null, Value: string(in.Status.Value)}
	}
	if in.Priority.Set {
		p.Priority = Optional[string]{Set: true, Null: in.Priority.Null, Value: string(in.Priority.Value)}
	}
	if in.DueDate.Set {
		p.DueDate = Optional[string]{Set: true, Null: in.DueDate.Null}
		if !in.DueDate.Null {
			p.DueDate.Value = in.DueDate.Value.Format(time.RFC3339Nano)
		}
	}
	return p
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Validate checks a create or update body. The same rules apply to both:
// title is mandatory every time.
func Validate(p Payload) (TaskInput, error) {
	var (
		in   TaskInput
		errs []FieldError
	)

	title := strings.TrimSpace(p.Title.Value)
	switch {
	case !p.Title.Set || p.Title.Null || title == "":
		errs = append(errs, FieldError{"title", "Title is required"})
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs = append(errs, FieldError{"title", "Title cannot exceed 100 characters"})
	default:
		in.Title = Some(title)
	}

	if p.Description.Set {
		if utf8.RuneCountInString(p.Description.Value) > MaxDescriptionLength {
			errs = append(errs, FieldError{"description", "Description cannot exceed 1000 characters"})
		} else {
			in.Description = p.Description
		}
	}

	if p.Status.Set {
		if s := Status(p.Status.Value); !p.Status.Null && s.Valid() {
			in.Status = Some(s)
		} else {
			errs = append(errs, FieldError{"status", "Invalid status"})
		}
	}

	if p.Priority.Set {
		if pr := Priority(p.Priority.Value); !p.Priority.Null && pr.Valid() {
			in.Priority = Some(pr)
		} else {
			errs = append(errs, FieldError{"priority", "Invalid priority"})
		}
	}

	if p.DueDate.Set {
		if p.DueDate.Null {
			in.DueDate = Null[time.Time]()
		} else if d, ok := parseDate(p.DueDate.Value); ok {
			in.DueDate = Some(d)
		} else {
			errs = append(errs, FieldError{"dueDate", "Invalid date format"})
		}
	}

	in.Tags = p.Tags

	if len(errs) > 0 {
		return TaskInput{}, &ValidationError{Fields: errs}
	}
	return in, nil
}
