package tasksvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p.rank() >= 0
}

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	}
	return -1
}

type Task struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      string     `json:"userId" gorm:"size:36;index;not null"`
	Title       string     `json:"title" gorm:"size:400;not null"`
	Description string     `json:"description"`
	Status      Status     `json:"status" gorm:"size:16;not null"`
	Priority    Priority   `json:"priority" gorm:"size:16;not null"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags" gorm:"type:text;serializer:json"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask builds a task owned by ownerID from validated input. Any owner
// the client may have supplied never reaches TaskInput.
func NewTask(ownerID string, in TaskInput) Task {
	t := Task{
		UserID:   ownerID,
		Title:    in.Title.Value,
		Status:   StatusPending,
		Priority: PriorityMedium,
		Tags:     []string{},
	}
	t.apply(in)
	return t
}

// Apply merges an update into t. Title is always overwritten; the other
// fields change only when present, and an explicit null clears
// description, due date and tags. UserID is never touched.
func (t *Task) Apply(in TaskInput) {
	t.Title = in.Title.Value
	t.apply(in)
}

func (t *Task) apply(in TaskInput) {
	if in.Description.Set {
		t.Description = in.Description.Value
	}
	if in.Status.Set && !in.Status.Null {
		t.Status = in.Status.Value
	}
	if in.Priority.Set && !in.Priority.Null {
		t.Priority = in.Priority.Value
	}
	if in.DueDate.Set {
		if in.DueDate.Null {
			t.DueDate = nil
		} else {
			d := in.DueDate.Value
			t.DueDate = &d
		}
	}
	if in.Tags.Set {
		t.Tags = []string{}
		if !in.Tags.Null {
			t.Tags = append(t.Tags, in.Tags.Value...)
		}
	}
}

// TaskRepository is the document store the handlers talk to. Find,
// Update and Delete return ErrNotFound for absent ids.
type TaskRepository interface {
	Create(ctx context.Context, task Task) (Task, error)
	FindAll(ctx context.Context, q Query) ([]Task, error)
	Find(ctx context.Context, taskID string) (Task, error)
	Update(ctx context.Context, task Task) (Task, error)
	Delete(ctx context.Context, taskID string) error
}

// NewID returns a fresh task identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a well-formed task identifier.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

var (
	ErrNotFound  = errors.New("task not found")
	ErrForbidden = errors.New("task belongs to another user")
	ErrStorage   = errors.New("storage failure")
)

// StorageError wraps a repository failure. Op names the operation in
// progress, e.g. "fetching tasks".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
