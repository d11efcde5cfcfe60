// util/event_bus_test.go
package util_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/util"
)

func TestMain(m *testing.M) {
	logger.InitLogger(os.TempDir())
	os.Exit(m.Run())
}

func TestPublishSyncDeliversBeforeReturning(t *testing.T) {
	bus := util.NewEventBus()
	var delivered atomic.Int64
	bus.Subscribe(util.EventACLChanged, func(ctx context.Context, e util.Event) error {
		delivered.Add(1)
		return nil
	})
	bus.Subscribe(util.EventACLChanged, func(ctx context.Context, e util.Event) error {
		delivered.Add(1)
		return nil
	})

	bus.PublishSync(context.Background(), util.EventACLChanged, "payload")
	assert.Equal(t, int64(2), delivered.Load())
}

func TestPublishSyncContinuesPastHandlerError(t *testing.T) {
	bus := util.NewEventBus()
	var delivered atomic.Int64
	bus.Subscribe(util.EventACLChanged, func(ctx context.Context, e util.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(util.EventACLChanged, func(ctx context.Context, e util.Event) error {
		delivered.Add(1)
		return nil
	})

	bus.PublishSync(context.Background(), util.EventACLChanged, "payload")
	assert.Equal(t, int64(1), delivered.Load())
}

func TestPublishIsAsynchronous(t *testing.T) {
	bus := util.NewEventBus()
	done := make(chan struct{})
	bus.Subscribe(util.EventACLChanged, func(ctx context.Context, e util.Event) error {
		close(done)
		return nil
	})

	bus.Publish(context.Background(), util.EventACLChanged, "payload")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := util.NewEventBus()
	bus.Publish(context.Background(), "unknown.topic", "payload")
	bus.PublishSync(context.Background(), "unknown.topic", "payload")
}
