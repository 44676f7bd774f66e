package taskservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/tasksvc"
	"github.com/ichigozero/taskkeeper/tasksvc/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = authsvc.Principal{ID: "alice", Name: "Alice"}
	bob   = authsvc.Principal{ID: "bob", Name: "Bob"}
)

func newService() Service {
	return New(inmem.NewTaskRepository(), log.NewNopLogger())
}

func input(title string) tasksvc.TaskInput {
	return tasksvc.TaskInput{Title: tasksvc.Some(title)}
}

func TestCreateTask_OwnerIsThePrincipal(t *testing.T) {
	svc := newService()

	task, err := svc.CreateTask(context.Background(), alice, input("Buy milk"))
	require.NoError(t, err)
	assert.Equal(t, "alice", task.UserID)
	assert.Equal(t, tasksvc.StatusPending, task.Status)
	assert.Equal(t, tasksvc.PriorityMedium, task.Priority)
	assert.True(t, tasksvc.ValidID(task.ID))
}

func TestNoPrincipal(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	task, err := svc.CreateTask(ctx, alice, input("x"))
	require.NoError(t, err)

	anon := authsvc.Principal{}
	_, err = svc.CreateTask(ctx, anon, input("x"))
	assert.ErrorIs(t, err, authsvc.ErrNoCredential)
	_, err = svc.Tasks(ctx, anon, tasksvc.ListParams{})
	assert.ErrorIs(t, err, authsvc.ErrNoCredential)
	_, err = svc.Task(ctx, anon, task.ID)
	assert.ErrorIs(t, err, authsvc.ErrNoCredential)
	_, err = svc.UpdateTask(ctx, anon, task.ID, input("y"))
	assert.ErrorIs(t, err, authsvc.ErrNoCredential)
	assert.ErrorIs(t, svc.DeleteTask(ctx, anon, task.ID), authsvc.ErrNoCredential)
}

func TestTasks_OnlyOwnTasks(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	for _, title := range []string{"a1", "a2"} {
		_, err := svc.CreateTask(ctx, alice, input(title))
		require.NoError(t, err)
	}
	_, err := svc.CreateTask(ctx, bob, input("b1"))
	require.NoError(t, err)

	tasks, err := svc.Tasks(ctx, alice, tasksvc.ListParams{SortBy: "title", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a1", tasks[0].Title)
	assert.Equal(t, "a2", tasks[1].Title)

	tasks, err = svc.Tasks(ctx, authsvc.Principal{ID: "carol"}, tasksvc.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCrossOwnerAccess(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	task, err := svc.CreateTask(ctx, alice, input("private"))
	require.NoError(t, err)

	_, err = svc.Task(ctx, bob, task.ID)
	assert.ErrorIs(t, err, tasksvc.ErrForbidden)

	_, err = svc.UpdateTask(ctx, bob, task.ID, input("hijacked"))
	assert.ErrorIs(t, err, tasksvc.ErrForbidden)

	assert.ErrorIs(t, svc.DeleteTask(ctx, bob, task.ID), tasksvc.ErrForbidden)

	got, err := svc.Task(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)
}

func TestUnknownAndMalformedIDs(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	for _, id := range []string{tasksvc.NewID(), "42", "../etc/passwd", ""} {
		_, err := svc.Task(ctx, alice, id)
		assert.ErrorIs(t, err, tasksvc.ErrNotFound, id)

		_, err = svc.UpdateTask(ctx, alice, id, input("x"))
		assert.ErrorIs(t, err, tasksvc.ErrNotFound, id)

		assert.ErrorIs(t, svc.DeleteTask(ctx, alice, id), tasksvc.ErrNotFound, id)
	}
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	task, err := svc.CreateTask(ctx, alice, tasksvc.TaskInput{
		Title:       tasksvc.Some("Report"),
		Description: tasksvc.Some("draft"),
		Tags:        tasksvc.Some([]string{"work"}),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskInput{
		Title:  tasksvc.Some("Final report"),
		Status: tasksvc.Some(tasksvc.StatusCompleted),
	})
	require.NoError(t, err)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, "alice", updated.UserID)
	assert.Equal(t, "Final report", updated.Title)
	assert.Equal(t, "draft", updated.Description)
	assert.Equal(t, tasksvc.StatusCompleted, updated.Status)
	assert.Equal(t, []string{"work"}, updated.Tags)
	assert.Equal(t, task.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(task.UpdatedAt))

	got, err := svc.Task(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestDeleteTask_IsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	task, err := svc.CreateTask(ctx, alice, input("x"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, alice, task.ID))
	assert.ErrorIs(t, svc.DeleteTask(ctx, alice, task.ID), tasksvc.ErrNotFound)

	_, err = svc.Task(ctx, alice, task.ID)
	assert.ErrorIs(t, err, tasksvc.ErrNotFound)
}

type brokenRepository struct {
	tasksvc.TaskRepository
	err error
}

func (r brokenRepository) FindAll(context.Context, tasksvc.Query) ([]tasksvc.Task, error) {
	return nil, r.err
}

func (r brokenRepository) Find(context.Context, string) (tasksvc.Task, error) {
	return tasksvc.Task{}, r.err
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection reset")
	svc := NewBasicService(brokenRepository{inmem.NewTaskRepository(), cause})

	_, err := svc.Tasks(ctx, alice, tasksvc.ListParams{})
	var serr *tasksvc.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "fetching tasks", serr.Op)
	assert.ErrorIs(t, err, cause)

	_, err = svc.Task(ctx, alice, tasksvc.NewID())
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "fetching task", serr.Op)

	_, err = svc.UpdateTask(ctx, alice, tasksvc.NewID(), input("x"))
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "updating task", serr.Op)

	err = svc.DeleteTask(ctx, alice, tasksvc.NewID())
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "deleting task", serr.Op)
}

type counter struct {
	mtx    *sync.Mutex
	counts map[string]float64
	lvs    []string
}

func newCounter() counter {
	return counter{mtx: &sync.Mutex{}, counts: make(map[string]float64)}
}

func (c counter) With(labelValues ...string) metrics.Counter {
	return counter{mtx: c.mtx, counts: c.counts, lvs: append(append([]string{}, c.lvs...), labelValues...)}
}

func (c counter) Add(delta float64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.counts[strings.Join(c.lvs, ",")] += delta
}

func TestInstrumentingMiddleware(t *testing.T) {
	ctx := context.Background()
	requests := newCounter()
	svc := InstrumentingMiddleware(requests, discard.NewHistogram())(newService())

	task, err := svc.CreateTask(ctx, alice, input("x"))
	require.NoError(t, err)
	_, _ = svc.Task(ctx, bob, task.ID)
	_, _ = svc.Task(ctx, alice, tasksvc.NewID())
	_, _ = svc.Tasks(ctx, authsvc.Principal{}, tasksvc.ListParams{})

	assert.Equal(t, map[string]float64{
		"method,create_task,error,none": 1,
		"method,task,error,forbidden":   1,
		"method,task,error,not_found":   1,
		"method,tasks,error,other":      1,
	}, requests.counts)
}
