package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/authsvc/pkg/authservice"
	"github.com/ichigozero/taskkeeper/tasksvc"
	"github.com/ichigozero/taskkeeper/tasksvc/inmem"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskkeeper/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/taskkeeper/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type userRepository struct{}

func (userRepository) User(_ context.Context, id string) (usersvc.User, error) {
	if id != "alice" {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	return usersvc.User{ID: "alice", Name: "Alice"}, nil
}

func TestNewWithInstancer(t *testing.T) {
	logger := log.NewNopLogger()

	var instances []string
	for i := 0; i < 2; i++ {
		svc := taskservice.New(inmem.NewTaskRepository(), logger)
		resolver := authservice.NewBasicResolver(authsvc.Config{AccessSecret: secret}, userRepository{})
		srv := httptest.NewServer(tasktransport.NewHTTPHandler(taskendpoint.New(svc, logger), resolver, logger))
		t.Cleanup(srv.Close)
		instances = append(instances, srv.URL)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, authservice.Claims{
		UserID:           "alice",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(secret)
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), kitjwt.JWTTokenContextKey, token)

	endpoints := NewWithInstancer(sd.FixedInstancer(instances), logger, 3, time.Second)

	// The endpointer picks up the fixed instances asynchronously.
	require.Eventually(t, func() bool {
		_, err := endpoints.Tasks(ctx, authsvc.Principal{}, tasksvc.ListParams{})
		return err == nil
	}, time.Second, 10*time.Millisecond)

	created, err := endpoints.CreateTask(ctx, authsvc.Principal{}, tasksvc.TaskInput{Title: tasksvc.Some("Balanced")})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.UserID)

	// Each instance has its own store, so a lookup lands on the owning
	// instance only half of the time. Both outcomes are proper replies.
	_, err = endpoints.Task(ctx, authsvc.Principal{}, created.ID)
	if err != nil {
		assert.ErrorIs(t, err, tasksvc.ErrNotFound)
	}

	_, err = endpoints.Tasks(context.Background(), authsvc.Principal{}, tasksvc.ListParams{})
	assert.ErrorIs(t, err, authsvc.ErrNoCredential)
}
