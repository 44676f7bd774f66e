package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
	"github.com/ichigozero/taskkeeper/authsvc/pkg/authservice"
	"github.com/ichigozero/taskkeeper/tasksvc"
	taskgorm "github.com/ichigozero/taskkeeper/tasksvc/db/gorm"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/taskkeeper/usersvc"
	usergorm "github.com/ichigozero/taskkeeper/usersvc/db/gorm"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twinj/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
)

func main() {
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}

	var db *libgorm.DB
	{
		gormConfig := &libgorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }}
		if cfg.DatabaseURL != "" {
			db, err = libgorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
		} else {
			db, err = libgorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
		}
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		if err := db.AutoMigrate(&usersvc.User{}, &tasksvc.Task{}); err != nil {
			logger.Log("during", "AutoMigrate", "err", err)
			os.Exit(1)
		}
	}

	var (
		requestCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "taskkeeper",
			Subsystem: "tasksvc",
			Name:      "request_count",
			Help:      "Number of requests received.",
		}, []string{"method", "error"})
		requestLatency = kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: "taskkeeper",
			Subsystem: "tasksvc",
			Name:      "request_latency_seconds",
			Help:      "Total duration of requests in seconds.",
		}, []string{"method", "error"})
	)

	resolver := authservice.New(cfg.auth(), usergorm.NewUserRepository(db), logger)

	var service taskservice.Service
	{
		service = taskservice.New(taskgorm.NewTaskRepository(db), logger)
		service = taskservice.InstrumentingMiddleware(requestCount, requestLatency)(service)
	}

	var (
		endpoints   = taskendpoint.New(service, logger)
		httpHandler = tasktransport.NewHTTPHandler(endpoints, resolver, logger)
	)

	r := tasktransport.NewRootHandler(httpHandler, promhttp.Handler(), cfg.CORSOrigins)

	if cfg.ConsulAddr != "" {
		registrar, err := register(cfg, logger)
		if err != nil {
			logger.Log("during", "Register", "err", err)
			os.Exit(1)
		}
		registrar.Register()
		defer registrar.Deregister()
	}

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			logger.Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		g.Add(func() error {
			logger.Log("transport", "HTTP", "addr", cfg.HTTPAddr)
			return http.Serve(httpListener, r)
		}, func(error) {
			httpListener.Close()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	logger.Log("exit", g.Run())
}

// register announces this instance to consul with an HTTP health check
// against /api/health.
func register(cfg config, logger log.Logger) (*consulsd.Registrar, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = cfg.ConsulAddr
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, err
	}

	host, port, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = "localhost"
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, err
	}

	asr := &api.AgentServiceRegistration{
		ID:      uuid.NewV4().String(),
		Name:    "tasksvc",
		Address: host,
		Port:    p,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s/api/health", net.JoinHostPort(host, port)),
			Interval: "10s",
			Timeout:  "1s",
		},
	}

	client := consulsd.NewClient(consulClient)
	return consulsd.NewRegistrar(client, asr, logger), nil
}
