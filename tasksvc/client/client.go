package client

import (
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/go-kit/kit/sd/lb"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/tasktransport"
)

// New returns endpoints balanced over the passing tasksvc instances
// registered in consul.
func New(apiclient consulsd.Client, logger log.Logger, retryMax int, retryTimeout time.Duration) (taskendpoint.Set, error) {
	var (
		tags        = []string{}
		passingOnly = true
		instancer   = consulsd.NewInstancer(apiclient, logger, "tasksvc", tags, passingOnly)
	)
	return NewWithInstancer(instancer, logger, retryMax, retryTimeout), nil
}

// NewWithInstancer is New for an arbitrary instance source.
func NewWithInstancer(instancer sd.Instancer, logger log.Logger, retryMax int, retryTimeout time.Duration) taskendpoint.Set {
	endpoints := taskendpoint.Set{}
	{
		factory := factoryFor(func(s taskendpoint.Set) endpoint.Endpoint { return s.CreateTaskEndpoint }, logger)
		endpointer := sd.NewEndpointer(instancer, factory, logger)
		balancer := lb.NewRoundRobin(endpointer)
		retry := lb.Retry(retryMax, retryTimeout, balancer)
		endpoints.CreateTaskEndpoint = retry
	}
	{
		factory := factoryFor(func(s taskendpoint.Set) endpoint.Endpoint { return s.TasksEndpoint }, logger)
		endpointer := sd.NewEndpointer(instancer, factory, logger)
		balancer := lb.NewRoundRobin(endpointer)
		retry := lb.Retry(retryMax, retryTimeout, balancer)
		endpoints.TasksEndpoint = retry
	}
	{
		factory := factoryFor(func(s taskendpoint.Set) endpoint.Endpoint { return s.TaskEndpoint }, logger)
		endpointer := sd.NewEndpointer(instancer, factory, logger)
		balancer := lb.NewRoundRobin(endpointer)
		retry := lb.Retry(retryMax, retryTimeout, balancer)
		endpoints.TaskEndpoint = retry
	}
	{
		factory := factoryFor(func(s taskendpoint.Set) endpoint.Endpoint { return s.UpdateTaskEndpoint }, logger)
		endpointer := sd.NewEndpointer(instancer, factory, logger)
		balancer := lb.NewRoundRobin(endpointer)
		retry := lb.Retry(retryMax, retryTimeout, balancer)
		endpoints.UpdateTaskEndpoint = retry
	}
	{
		factory := factoryFor(func(s taskendpoint.Set) endpoint.Endpoint { return s.DeleteTaskEndpoint }, logger)
		endpointer := sd.NewEndpointer(instancer, factory, logger)
		balancer := lb.NewRoundRobin(endpointer)
		retry := lb.Retry(retryMax, retryTimeout, balancer)
		endpoints.DeleteTaskEndpoint = retry
	}
	return endpoints
}

// factoryFor builds one HTTP client endpoint per discovered instance.
// Plain HTTP holds no connection, so there is nothing to close.
func factoryFor(pick func(taskendpoint.Set) endpoint.Endpoint, logger log.Logger) sd.Factory {
	return func(instance string) (endpoint.Endpoint, io.Closer, error) {
		set, err := tasktransport.NewHTTPEndpoints(instance, logger)
		if err != nil {
			return nil, nil, err
		}
		return pick(set), nil, nil
	}
}
