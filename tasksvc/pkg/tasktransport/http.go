package tasktransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/authsvc/pkg/authservice"
	"github.com/ichigozero/taskkeeper/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskkeeper/tasksvc"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskservice"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// NewHTTPHandler serves the task routes. Every route is behind the
// resolver: the principal is resolved before the body is validated or
// storage is touched.
func NewHTTPHandler(endpoints taskendpoint.Set, resolver authservice.Resolver, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(httptransport.PopulateRequestContext),
	}

	authenticate := authtransport.NewAuthenticator(resolver)

	createTaskHandler := httptransport.NewServer(
		authenticate(endpoints.CreateTaskEndpoint),
		decodeHTTPCreateTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	tasksHandler := httptransport.NewServer(
		authenticate(endpoints.TasksEndpoint),
		decodeHTTPTasksRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	taskHandler := httptransport.NewServer(
		authenticate(endpoints.TaskEndpoint),
		decodeHTTPTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	updateTaskHandler := httptransport.NewServer(
		authenticate(endpoints.UpdateTaskEndpoint),
		decodeHTTPUpdateTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	deleteTaskHandler := httptransport.NewServer(
		authenticate(endpoints.DeleteTaskEndpoint),
		decodeHTTPDeleteTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	r := mux.NewRouter()

	r.Methods("GET").Path("/tasks").Handler(tasksHandler)
	r.Methods("POST").Path("/tasks").Handler(createTaskHandler)
	r.Methods("GET").Path("/tasks/{task_id}").Handler(taskHandler)
	r.Methods("PUT").Path("/tasks/{task_id}").Handler(updateTaskHandler)
	r.Methods("DELETE").Path("/tasks/{task_id}").Handler(deleteTaskHandler)
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = NotFoundHandler()

	return limitBody(r, MaxBodyBytes)
}

// MaxBodyBytes caps a request body. Anything longer fails to decode and is
// reported as an invalid body.
const MaxBodyBytes = 1 << 20

func limitBody(next http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

// NewRootHandler mounts the task routes under /api beside the health and
// metrics routes. Cross-origin requests are answered for origins.
func NewRootHandler(tasks, metrics http.Handler, origins []string) http.Handler {
	r := mux.NewRouter()
	r.Methods("GET").Path("/api/health").Handler(NewHealthHandler())
	r.Methods("GET").Path("/metrics").Handler(metrics)
	r.PathPrefix("/api").Handler(http.StripPrefix("/api", tasks))
	r.NotFoundHandler = NotFoundHandler()

	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.OptionStatusCode(http.StatusNoContent),
	)(r)
}

// NotFoundHandler answers unknown routes with the error envelope.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusNotFound, envelope{Status: statusError, Message: "Route not found"})
	})
}

// NewHealthHandler reports liveness. It is not authenticated.
func NewHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, envelope{
			Status:    statusSuccess,
			Message:   "Server is running",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status    string               `json:"status"`
	Message   string               `json:"message,omitempty"`
	Count     *int                 `json:"count,omitempty"`
	Data      interface{}          `json:"data,omitempty"`
	Errors    []tasksvc.FieldError `json:"errors,omitempty"`
	Timestamp string               `json:"timestamp,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, code int, env envelope) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(env)
}

func errorEncoder(ctx context.Context, err error, w http.ResponseWriter) {
	env := envelope{Status: statusError, Message: err2message(ctx, err)}

	var verr *tasksvc.ValidationError
	if errors.As(err, &verr) {
		env.Errors = verr.Fields
	}

	writeEnvelope(w, err2code(err), env)
}

func err2code(err error) int {
	var verr *tasksvc.ValidationError
	switch {
	case authsvc.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, tasksvc.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tasksvc.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

var authMessages = map[error]string{
	authsvc.ErrNoCredential:      "Not authorized, no token provided",
	authsvc.ErrCredentialExpired: "Token expired, please login again",
	authsvc.ErrInvalidCredential: "Not authorized, invalid token",
	authsvc.ErrPrincipalNotFound: "User not found",
}

const (
	messageValidation = "Validation failed"
	messageNotFound   = "Task not found"
	messageServer     = "Internal Server Error"
	storagePrefix     = "Server error while "
)

// err2message never exposes the text of storage or unexpected errors.
func err2message(ctx context.Context, err error) string {
	for kind, msg := range authMessages {
		if errors.Is(err, kind) {
			return msg
		}
	}

	var (
		verr *tasksvc.ValidationError
		serr *tasksvc.StorageError
	)
	switch {
	case errors.As(err, &verr):
		return messageValidation
	case errors.Is(err, tasksvc.ErrNotFound):
		return messageNotFound
	case errors.Is(err, tasksvc.ErrForbidden):
		return fmt.Sprintf("Not authorized to %s this task", action(ctx))
	case errors.As(err, &serr):
		return storagePrefix + serr.Op
	}
	return messageServer
}

func action(ctx context.Context) string {
	switch method, _ := ctx.Value(httptransport.ContextKeyRequestMethod).(string); method {
	case http.MethodPut:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "access"
}

func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}

	switch resp := response.(type) {
	case taskendpoint.TasksResponse:
		if resp.Tasks == nil {
			resp.Tasks = []tasksvc.Task{}
		}
		count := len(resp.Tasks)
		return writeEnvelope(w, http.StatusOK, envelope{Status: statusSuccess, Count: &count, Data: resp})
	case taskendpoint.TaskResponse:
		return writeEnvelope(w, http.StatusOK, envelope{Status: statusSuccess, Data: resp})
	case taskendpoint.CreateTaskResponse:
		return writeEnvelope(w, http.StatusCreated, envelope{
			Status:  statusSuccess,
			Message: "Task created successfully",
			Data:    resp,
		})
	case taskendpoint.UpdateTaskResponse:
		return writeEnvelope(w, http.StatusOK, envelope{
			Status:  statusSuccess,
			Message: "Task updated successfully",
			Data:    resp,
		})
	case taskendpoint.DeleteTaskResponse:
		return writeEnvelope(w, http.StatusOK, envelope{
			Status:  statusSuccess,
			Message: "Task deleted successfully",
		})
	}
	return writeEnvelope(w, http.StatusOK, envelope{Status: statusSuccess, Data: response})
}

func decodeHTTPCreateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req taskendpoint.CreateTaskRequest
	req.BodyErr = decodeBody(r, &req.Payload)
	return req, nil
}

func decodeHTTPTasksRequest(_ context.Context, r *http.Request) (interface{}, error) {
	q := r.URL.Query()
	return taskendpoint.TasksRequest{
		Params: tasksvc.ListParams{
			Status:   q.Get("status"),
			Priority: q.Get("priority"),
			Search:   q.Get("search"),
			SortBy:   q.Get("sortBy"),
			Order:    q.Get("order"),
		},
	}, nil
}

func decodeHTTPTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := taskIDVar(r)
	if err != nil {
		return nil, err
	}

	return taskendpoint.TaskRequest{
		TaskID: taskID,
	}, nil
}

func decodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := taskIDVar(r)
	if err != nil {
		return nil, err
	}

	req := taskendpoint.UpdateTaskRequest{TaskID: taskID}
	req.BodyErr = decodeBody(r, &req.Payload)

	return req, nil
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := taskIDVar(r)
	if err != nil {
		return nil, err
	}

	return taskendpoint.DeleteTaskRequest{
		TaskID: taskID,
	}, nil
}

// decodeBody treats an empty body as an empty payload, which then fails
// validation on the missing title.
func decodeBody(r *http.Request, p *tasksvc.Payload) error {
	err := json.NewDecoder(r.Body).Decode(p)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func taskIDVar(r *http.Request) (string, error) {
	taskID, ok := mux.Vars(r)["task_id"]
	if !ok {
		return "", ErrBadRouting
	}
	return taskID, nil
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")

// NewHTTPClient returns a Service backed by a remote instance. The bearer
// token is taken from kitjwt.JWTTokenContextKey in the call's context.
// Service errors are decoded back into the tasksvc and authsvc sentinels.
func NewHTTPClient(instance string, logger log.Logger) (taskservice.Service, error) {
	return NewHTTPEndpoints(instance, logger)
}

// NewHTTPEndpoints is NewHTTPClient without the Service facade, for
// callers that balance individual endpoints across instances.
func NewHTTPEndpoints(instance string, logger log.Logger) (taskendpoint.Set, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return taskendpoint.Set{}, err
	}

	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second), 100))

	options := []httptransport.ClientOption{
		httptransport.ClientBefore(kitjwt.ContextToHTTP()),
	}

	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/tasks"),
			encodeHTTPCreateTaskRequest,
			decodeHTTPCreateTaskResponse,
			options...,
		).Endpoint()
		createTaskEndpoint = limiter(createTaskEndpoint)
		createTaskEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "CreateTask",
			Timeout: 30 * time.Second,
		}))(createTaskEndpoint)
	}

	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/tasks"),
			encodeHTTPTasksRequest,
			decodeHTTPTasksResponse,
			options...,
		).Endpoint()
		tasksEndpoint = limiter(tasksEndpoint)
		tasksEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "Tasks",
			Timeout: 30 * time.Second,
		}))(tasksEndpoint)
	}

	var taskEndpoint endpoint.Endpoint
	{
		taskEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/tasks"),
			encodeHTTPTaskRequest,
			decodeHTTPTaskResponse,
			options...,
		).Endpoint()
		taskEndpoint = limiter(taskEndpoint)
		taskEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "Task",
			Timeout: 30 * time.Second,
		}))(taskEndpoint)
	}

	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = httptransport.NewClient(
			"PUT",
			copyURL(u, "/tasks"),
			encodeHTTPUpdateTaskRequest,
			decodeHTTPUpdateTaskResponse,
			options...,
		).Endpoint()
		updateTaskEndpoint = limiter(updateTaskEndpoint)
		updateTaskEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "UpdateTask",
			Timeout: 30 * time.Second,
		}))(updateTaskEndpoint)
	}

	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = httptransport.NewClient(
			"DELETE",
			copyURL(u, "/tasks"),
			encodeHTTPDeleteTaskRequest,
			decodeHTTPDeleteTaskResponse,
			options...,
		).Endpoint()
		deleteTaskEndpoint = limiter(deleteTaskEndpoint)
		deleteTaskEndpoint = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "DeleteTask",
			Timeout: 30 * time.Second,
		}))(deleteTaskEndpoint)
	}

	return taskendpoint.Set{
		CreateTaskEndpoint: taskendpoint.LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint),
		TasksEndpoint:      taskendpoint.LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint),
		TaskEndpoint:       taskendpoint.LoggingMiddleware(log.With(logger, "method", "Task"))(taskEndpoint),
		UpdateTaskEndpoint: taskendpoint.LoggingMiddleware(log.With(logger, "method", "UpdateTask"))(updateTaskEndpoint),
		DeleteTaskEndpoint: taskendpoint.LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint),
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = strings.TrimSuffix(base.Path, "/") + path
	return &next
}

func withTaskID(r *http.Request, taskID string) {
	r.URL.Path = r.URL.Path + "/" + taskID
	r.URL.RawPath = ""
}

func encodeHTTPCreateTaskRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.CreateTaskRequest)
	return httptransport.EncodeJSONRequest(ctx, r, req.Payload)
}

func encodeHTTPTasksRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TasksRequest)
	q := url.Values{}
	for k, v := range map[string]string{
		"status":   req.Params.Status,
		"priority": req.Params.Priority,
		"search":   req.Params.Search,
		"sortBy":   req.Params.SortBy,
		"order":    req.Params.Order,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	r.URL.RawQuery = q.Encode()
	return nil
}

func encodeHTTPTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TaskRequest)
	withTaskID(r, req.TaskID)
	return nil
}

func encodeHTTPUpdateTaskRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.UpdateTaskRequest)
	withTaskID(r, req.TaskID)
	return httptransport.EncodeJSONRequest(ctx, r, req.Payload)
}

func encodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.DeleteTaskRequest)
	withTaskID(r, req.TaskID)
	return nil
}

func decodeHTTPCreateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.CreateTaskResponse
	failure, err := decodeEnvelope(r, &resp)
	if err != nil {
		return nil, err
	}
	resp.Err = failure
	return resp, nil
}

func decodeHTTPTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.TasksResponse
	failure, err := decodeEnvelope(r, &resp)
	if err != nil {
		return nil, err
	}
	resp.Count = len(resp.Tasks)
	resp.Err = failure
	return resp, nil
}

func decodeHTTPTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.TaskResponse
	failure, err := decodeEnvelope(r, &resp)
	if err != nil {
		return nil, err
	}
	resp.Err = failure
	return resp, nil
}

func decodeHTTPUpdateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.UpdateTaskResponse
	failure, err := decodeEnvelope(r, &resp)
	if err != nil {
		return nil, err
	}
	resp.Err = failure
	return resp, nil
}

func decodeHTTPDeleteTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.DeleteTaskResponse
	failure, err := decodeEnvelope(r, nil)
	if err != nil {
		return nil, err
	}
	resp.Err = failure
	return resp, nil
}

// decodeEnvelope unpacks a response body. failure is the service error
// the envelope describes; err is a transport or decoding problem.
func decodeEnvelope(r *http.Response, data interface{}) (failure error, err error) {
	var env struct {
		Status  string               `json:"status"`
		Message string               `json:"message"`
		Data    json.RawMessage      `json:"data"`
		Errors  []tasksvc.FieldError `json:"errors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding %d response: %w", r.StatusCode, err)
	}

	if r.StatusCode >= http.StatusBadRequest || env.Status == statusError {
		return code2err(r.StatusCode, env.Message, env.Errors), nil
	}

	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func code2err(code int, message string, fields []tasksvc.FieldError) error {
	switch code {
	case http.StatusUnauthorized:
		for kind, msg := range authMessages {
			if msg == message {
				return kind
			}
		}
		return authsvc.ErrInvalidCredential
	case http.StatusBadRequest:
		return &tasksvc.ValidationError{Fields: fields}
	case http.StatusForbidden:
		return tasksvc.ErrForbidden
	case http.StatusNotFound:
		return tasksvc.ErrNotFound
	}

	if op, ok := strings.CutPrefix(message, storagePrefix); ok {
		return &tasksvc.StorageError{Op: op, Err: errors.New(message)}
	}
	return errors.New(message)
}
