package taskservice

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/tasksvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

// log writes storage faults at error level so the full cause is kept
// server side; clients only see a generic message.
func (mw loggingMiddleware) log(err error, keyvals ...interface{}) {
	logger := level.Info(mw.logger)
	if errors.Is(err, tasksvc.ErrStorage) {
		logger = level.Error(mw.logger)
	}
	logger.Log(append(keyvals, "err", err)...)
}

func (mw loggingMiddleware) CreateTask(ctx context.Context, p authsvc.Principal, in tasksvc.TaskInput) (t tasksvc.Task, err error) {
	defer func() {
		mw.log(err,
			"method", "CreateTask",
			"user_id", p.ID,
			"task_id", t.ID,
			"title", in.Title.Value,
		)
	}()
	return mw.next.CreateTask(ctx, p, in)
}

func (mw loggingMiddleware) Tasks(ctx context.Context, p authsvc.Principal, params tasksvc.ListParams) (t []tasksvc.Task, err error) {
	defer func() {
		mw.log(err,
			"method", "Tasks",
			"user_id", p.ID,
			"status", params.Status,
			"priority", params.Priority,
			"search", params.Search,
			"sort_by", params.SortBy,
			"order", params.Order,
			"count", len(t),
		)
	}()
	return mw.next.Tasks(ctx, p, params)
}

func (mw loggingMiddleware) Task(ctx context.Context, p authsvc.Principal, taskID string) (t tasksvc.Task, err error) {
	defer func() {
		mw.log(err,
			"method", "Task",
			"user_id", p.ID,
			"task_id", taskID,
		)
	}()
	return mw.next.Task(ctx, p, taskID)
}

func (mw loggingMiddleware) UpdateTask(ctx context.Context, p authsvc.Principal, taskID string, in tasksvc.TaskInput) (t tasksvc.Task, err error) {
	defer func() {
		mw.log(err,
			"method", "UpdateTask",
			"user_id", p.ID,
			"task_id", taskID,
			"title", in.Title.Value,
			"status", t.Status,
			"priority", t.Priority,
		)
	}()
	return mw.next.UpdateTask(ctx, p, taskID, in)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, p authsvc.Principal, taskID string) (err error) {
	defer func() {
		mw.log(err,
			"method", "DeleteTask",
			"user_id", p.ID,
			"task_id", taskID,
		)
	}()
	return mw.next.DeleteTask(ctx, p, taskID)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", errorLabel(err)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) CreateTask(ctx context.Context, p authsvc.Principal, in tasksvc.TaskInput) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("create_task", begin, err) }(time.Now())

	return mw.next.CreateTask(ctx, p, in)
}

func (mw instrumentingMiddleware) Tasks(ctx context.Context, p authsvc.Principal, params tasksvc.ListParams) (t []tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("tasks", begin, err) }(time.Now())

	return mw.next.Tasks(ctx, p, params)
}

func (mw instrumentingMiddleware) Task(ctx context.Context, p authsvc.Principal, taskID string) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("task", begin, err) }(time.Now())

	return mw.next.Task(ctx, p, taskID)
}

func (mw instrumentingMiddleware) UpdateTask(ctx context.Context, p authsvc.Principal, taskID string, in tasksvc.TaskInput) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("update_task", begin, err) }(time.Now())

	return mw.next.UpdateTask(ctx, p, taskID, in)
}

func (mw instrumentingMiddleware) DeleteTask(ctx context.Context, p authsvc.Principal, taskID string) (err error) {
	defer func(begin time.Time) { mw.observe("delete_task", begin, err) }(time.Now())

	return mw.next.DeleteTask(ctx, p, taskID)
}

func errorLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, tasksvc.ErrNotFound):
		return "not_found"
	case errors.Is(err, tasksvc.ErrForbidden):
		return "forbidden"
	case errors.Is(err, tasksvc.ErrStorage):
		return "storage"
	}
	return "other"
}
