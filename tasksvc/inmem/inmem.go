package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ichigozero/taskkeeper/tasksvc"
)

type taskRepository struct {
	mtx   sync.RWMutex
	tasks map[string]tasksvc.Task
	now   func() time.Time
}

// NewTaskRepository returns a map-backed repository. It evaluates queries
// with tasksvc.Query.Match and Less, so it orders results exactly like
// the SQL repository.
func NewTaskRepository() tasksvc.TaskRepository {
	return &taskRepository{
		tasks: make(map[string]tasksvc.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *taskRepository) Create(_ context.Context, task tasksvc.Task) (tasksvc.Task, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if task.ID == "" {
		task.ID = tasksvc.NewID()
	}
	now := r.now()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks[task.ID] = clone(task)

	return clone(task), nil
}

func (r *taskRepository) FindAll(_ context.Context, q tasksvc.Query) ([]tasksvc.Task, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	tasks := []tasksvc.Task{}
	for _, t := range r.tasks {
		if q.Match(t) {
			tasks = append(tasks, clone(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return q.Less(tasks[i], tasks[j]) })

	return tasks, nil
}

func (r *taskRepository) Find(_ context.Context, taskID string) (tasksvc.Task, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrNotFound
	}
	return clone(t), nil
}

func (r *taskRepository) Update(_ context.Context, task tasksvc.Task) (tasksvc.Task, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	prev, ok := r.tasks[task.ID]
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrNotFound
	}
	task.UserID = prev.UserID
	task.CreatedAt = prev.CreatedAt
	task.UpdatedAt = r.now()
	r.tasks[task.ID] = clone(task)

	return clone(task), nil
}

func (r *taskRepository) Delete(_ context.Context, taskID string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return tasksvc.ErrNotFound
	}
	delete(r.tasks, taskID)
	return nil
}

func clone(t tasksvc.Task) tasksvc.Task {
	t.Tags = append([]string{}, t.Tags...)
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}
