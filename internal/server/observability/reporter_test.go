package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *capture) beforeSend(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func TestSentryReporter_TagsKind(t *testing.T) {
	c := &capture{}
	r, err := NewSentryReporter(sentry.ClientOptions{BeforeSend: c.beforeSend})
	require.NoError(t, err)

	r.Report(context.Background(), common.Wrap(common.ErrDeliveryFailed, errors.New("smtp: 421")), map[string]string{"template": "verification"})
	r.Report(context.Background(), nil, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 1)
	assert.Equal(t, "delivery", c.events[0].Tags["kind"])
	assert.Equal(t, "verification", c.events[0].Tags["template"])
}

func TestSentryReporter_ScopesDoNotLeak(t *testing.T) {
	c := &capture{}
	r, err := NewSentryReporter(sentry.ClientOptions{BeforeSend: c.beforeSend})
	require.NoError(t, err)

	r.Report(context.Background(), errors.New("first"), map[string]string{"op": "a"})
	r.Report(context.Background(), errors.New("second"), nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 2)
	_, leaked := c.events[1].Tags["op"]
	assert.False(t, leaked)
	assert.Equal(t, "internal", c.events[1].Tags["kind"])
}

func TestNopReporter(t *testing.T) {
	var r Reporter = NopReporter{}
	r.Report(context.Background(), errors.New("x"), nil)
	assert.True(t, r.Flush(time.Millisecond))
}
