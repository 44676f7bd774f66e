package taskendpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/tasksvc"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskservice"
)

type Set struct {
	CreateTaskEndpoint endpoint.Endpoint
	TasksEndpoint      endpoint.Endpoint
	TaskEndpoint       endpoint.Endpoint
	UpdateTaskEndpoint endpoint.Endpoint
	DeleteTaskEndpoint endpoint.Endpoint
}

func New(svc taskservice.Service, logger log.Logger) Set {
	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = MakeCreateTaskEndpoint(svc)
		createTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint)
	}
	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = MakeTasksEndpoint(svc)
		tasksEndpoint = LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint)
	}
	var taskEndpoint endpoint.Endpoint
	{
		taskEndpoint = MakeTaskEndpoint(svc)
		taskEndpoint = LoggingMiddleware(log.With(logger, "method", "Task"))(taskEndpoint)
	}
	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = MakeUpdateTaskEndpoint(svc)
		updateTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateTask"))(updateTaskEndpoint)
	}
	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = MakeDeleteTaskEndpoint(svc)
		deleteTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint)
	}

	return Set{
		CreateTaskEndpoint: createTaskEndpoint,
		TasksEndpoint:      tasksEndpoint,
		TaskEndpoint:       taskEndpoint,
		UpdateTaskEndpoint: updateTaskEndpoint,
		DeleteTaskEndpoint: deleteTaskEndpoint,
	}
}

// The Set methods make a Set usable as a taskservice.Service on the
// client side. The principal argument is ignored there: the server
// resolves it again from the bearer token carried in ctx.

func (s Set) CreateTask(ctx context.Context, _ authsvc.Principal, in tasksvc.TaskInput) (tasksvc.Task, error) {
	resp, err := s.CreateTaskEndpoint(ctx, CreateTaskRequest{Payload: in.Payload()})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(CreateTaskResponse)
	return response.Task, response.Err
}

func (s Set) Tasks(ctx context.Context, _ authsvc.Principal, params tasksvc.ListParams) ([]tasksvc.Task, error) {
	resp, err := s.TasksEndpoint(ctx, TasksRequest{Params: params})
	if err != nil {
		return nil, err
	}
	response := resp.(TasksResponse)
	return response.Tasks, response.Err
}

func (s Set) Task(ctx context.Context, _ authsvc.Principal, taskID string) (tasksvc.Task, error) {
	resp, err := s.TaskEndpoint(ctx, TaskRequest{TaskID: taskID})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(TaskResponse)
	return response.Task, response.Err
}

func (s Set) UpdateTask(ctx context.Context, _ authsvc.Principal, taskID string, in tasksvc.TaskInput) (tasksvc.Task, error) {
	resp, err := s.UpdateTaskEndpoint(ctx, UpdateTaskRequest{TaskID: taskID, Payload: in.Payload()})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(UpdateTaskResponse)
	return response.Task, response.Err
}

func (s Set) DeleteTask(ctx context.Context, _ authsvc.Principal, taskID string) error {
	resp, err := s.DeleteTaskEndpoint(ctx, DeleteTaskRequest{TaskID: taskID})
	if err != nil {
		return err
	}
	response := resp.(DeleteTaskResponse)
	return response.Err
}

func MakeCreateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		p, ok := authsvc.FromContext(ctx)
		if !ok {
			return CreateTaskResponse{Err: authsvc.ErrNoCredential}, nil
		}

		req := request.(CreateTaskRequest)
		in, err := req.validate()
		if err != nil {
			return CreateTaskResponse{Err: err}, nil
		}

		t, err := s.CreateTask(ctx, p, in)
		return CreateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		p, ok := authsvc.FromContext(ctx)
		if !ok {
			return TasksResponse{Err: authsvc.ErrNoCredential}, nil
		}

		req := request.(TasksRequest)
		t, err := s.Tasks(ctx, p, req.Params)
		return TasksResponse{Tasks: t, Count: len(t), Err: err}, nil
	}
}

func MakeTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		p, ok := authsvc.FromContext(ctx)
		if !ok {
			return TaskResponse{Err: authsvc.ErrNoCredential}, nil
		}

		req := request.(TaskRequest)
		t, err := s.Task(ctx, p, req.TaskID)
		return TaskResponse{Task: t, Err: err}, nil
	}
}

func MakeUpdateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		p, ok := authsvc.FromContext(ctx)
		if !ok {
			return UpdateTaskResponse{Err: authsvc.ErrNoCredential}, nil
		}

		req := request.(UpdateTaskRequest)
		in, err := req.validate()
		if err != nil {
			return UpdateTaskResponse{Err: err}, nil
		}

		t, err := s.UpdateTask(ctx, p, req.TaskID, in)
		return UpdateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		p, ok := authsvc.FromContext(ctx)
		if !ok {
			return DeleteTaskResponse{Err: authsvc.ErrNoCredential}, nil
		}

		req := request.(DeleteTaskRequest)
		err = s.DeleteTask(ctx, p, req.TaskID)
		return DeleteTaskResponse{Err: err}, nil
	}
}

var (
	_ endpoint.Failer = CreateTaskResponse{}
	_ endpoint.Failer = TasksResponse{}
	_ endpoint.Failer = TaskResponse{}
	_ endpoint.Failer = UpdateTaskResponse{}
	_ endpoint.Failer = DeleteTaskResponse{}
)

// CreateTaskRequest carries the raw body. BodyErr holds a decoding
// failure; it is reported only once the caller is authenticated.
type CreateTaskRequest struct {
	Payload tasksvc.Payload
	BodyErr error
}

func (r CreateTaskRequest) validate() (tasksvc.TaskInput, error) {
	return validateBody(r.Payload, r.BodyErr)
}

type CreateTaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r CreateTaskResponse) Failed() error { return r.Err }

type TasksRequest struct {
	Params tasksvc.ListParams
}

type TasksResponse struct {
	Tasks []tasksvc.Task `json:"tasks"`
	Count int            `json:"-"`
	Err   error          `json:"-"`
}

func (r TasksResponse) Failed() error { return r.Err }

type TaskRequest struct {
	TaskID string
}

type TaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r TaskResponse) Failed() error { return r.Err }

type UpdateTaskRequest struct {
	TaskID  string
	Payload tasksvc.Payload
	BodyErr error
}

func (r UpdateTaskRequest) validate() (tasksvc.TaskInput, error) {
	return validateBody(r.Payload, r.BodyErr)
}

type UpdateTaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r UpdateTaskResponse) Failed() error { return r.Err }

type DeleteTaskRequest struct {
	TaskID string
}

type DeleteTaskResponse struct {
	Err error `json:"-"`
}

func (r DeleteTaskResponse) Failed() error { return r.Err }

func validateBody(p tasksvc.Payload, bodyErr error) (tasksvc.TaskInput, error) {
	if bodyErr != nil {
		return tasksvc.TaskInput{}, &tasksvc.ValidationError{
			Fields: []tasksvc.FieldError{{Field: "body", Message: "Invalid request body"}},
		}
	}
	return tasksvc.Validate(p)
}
