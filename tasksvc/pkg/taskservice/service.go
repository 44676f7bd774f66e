package taskservice

import (
	"context"
	"errors"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/tasksvc"
)

// Service holds the task command handlers. Every method acts on behalf
// of an already resolved principal.
type Service interface {
	CreateTask(ctx context.Context, p authsvc.Principal, in tasksvc.TaskInput) (tasksvc.Task, error)
	Tasks(ctx context.Context, p authsvc.Principal, params tasksvc.ListParams) ([]tasksvc.Task, error)
	Task(ctx context.Context, p authsvc.Principal, taskID string) (tasksvc.Task, error)
	UpdateTask(ctx context.Context, p authsvc.Principal, taskID string, in tasksvc.TaskInput) (tasksvc.Task, error)
	DeleteTask(ctx context.Context, p authsvc.Principal, taskID string) error
}

func New(t tasksvc.TaskRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	tasks tasksvc.TaskRepository
}

func NewBasicService(t tasksvc.TaskRepository) Service {
	return basicService{tasks: t}
}

func (s basicService) CreateTask(ctx context.Context, p authsvc.Principal, in tasksvc.TaskInput) (tasksvc.Task, error) {
	if p.ID == "" {
		return tasksvc.Task{}, authsvc.ErrNoCredential
	}

	t, err := s.tasks.Create(ctx, tasksvc.NewTask(p.ID, in))
	if err != nil {
		return tasksvc.Task{}, &tasksvc.StorageError{Op: "creating task", Err: err}
	}
	return t, nil
}

func (s basicService) Tasks(ctx context.Context, p authsvc.Principal, params tasksvc.ListParams) ([]tasksvc.Task, error) {
	if p.ID == "" {
		return nil, authsvc.ErrNoCredential
	}

	tasks, err := s.tasks.FindAll(ctx, tasksvc.BuildQuery(p.ID, params))
	if err != nil {
		return nil, &tasksvc.StorageError{Op: "fetching tasks", Err: err}
	}
	return tasks, nil
}

func (s basicService) Task(ctx context.Context, p authsvc.Principal, taskID string) (tasksvc.Task, error) {
	return s.owned(ctx, p, taskID, "fetching task")
}

// UpdateTask is a plain read-check-write. A concurrent update from
// another session of the same owner may be overwritten: last writer wins.
func (s basicService) UpdateTask(ctx context.Context, p authsvc.Principal, taskID string, in tasksvc.TaskInput) (tasksvc.Task, error) {
	t, err := s.owned(ctx, p, taskID, "updating task")
	if err != nil {
		return tasksvc.Task{}, err
	}

	t.Apply(in)

	t, err = s.tasks.Update(ctx, t)
	switch {
	case errors.Is(err, tasksvc.ErrNotFound):
		return tasksvc.Task{}, tasksvc.ErrNotFound
	case err != nil:
		return tasksvc.Task{}, &tasksvc.StorageError{Op: "updating task", Err: err}
	}
	return t, nil
}

func (s basicService) DeleteTask(ctx context.Context, p authsvc.Principal, taskID string) error {
	if _, err := s.owned(ctx, p, taskID, "deleting task"); err != nil {
		return err
	}

	err := s.tasks.Delete(ctx, taskID)
	switch {
	case errors.Is(err, tasksvc.ErrNotFound):
		return tasksvc.ErrNotFound
	case err != nil:
		return &tasksvc.StorageError{Op: "deleting task", Err: err}
	}
	return nil
}

// owned fetches a task and applies the ownership guard. Malformed ids
// are reported as ErrNotFound so their format is not revealed.
func (s basicService) owned(ctx context.Context, p authsvc.Principal, taskID, op string) (tasksvc.Task, error) {
	if p.ID == "" {
		return tasksvc.Task{}, authsvc.ErrNoCredential
	}
	if !tasksvc.ValidID(taskID) {
		return tasksvc.Task{}, tasksvc.ErrNotFound
	}

	t, err := s.tasks.Find(ctx, taskID)
	switch {
	case errors.Is(err, tasksvc.ErrNotFound):
		return tasksvc.Task{}, tasksvc.ErrNotFound
	case err != nil:
		return tasksvc.Task{}, &tasksvc.StorageError{Op: op, Err: err}
	}

	if tasksvc.Authorize(p, t.UserID) == tasksvc.Deny {
		return tasksvc.Task{}, tasksvc.ErrForbidden
	}
	return t, nil
}
