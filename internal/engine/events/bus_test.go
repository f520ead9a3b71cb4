package events

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/loader/internal/engine/types"
	"github.com/surge-downloader/loader/internal/utils"
)

type fakeTarget string

func (f fakeTarget) ID() string { return string(f) }

func TestBus_DeliversByCode(t *testing.T) {
	bus := NewBus()
	var progress, all []Code

	bus.Subscribe(CodeProgress, func(e Event) { progress = append(progress, e.Code) })
	bus.SubscribeAll(func(e Event) { all = append(all, e.Code) })

	bus.Publish(Start(fakeTarget("t"), "http://x"))
	bus.Publish(Progress(fakeTarget("t"), types.ByteCursor{Loaded: 1, Total: 2}))
	bus.Publish(Close(fakeTarget("t")))

	assert.Equal(t, []Code{CodeProgress}, progress)
	assert.Equal(t, []Code{CodeStart, CodeProgress, CodeClose}, all)
}

func TestBus_UnsubscribeUsesSameToken(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.SubscribeAll(func(Event) { calls++ })
	require.Equal(t, 1, bus.Len())

	bus.Publish(Close(nil))
	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub), "second detach is a no-op")
	assert.Equal(t, 0, bus.Len())

	bus.Publish(Close(nil))
	assert.Equal(t, 1, calls)
}

func TestBus_ReentrantPublishIsDeliveredAfterCurrentListener(t *testing.T) {
	bus := NewBus()
	var order []string

	bus.Subscribe(CodeStart, func(e Event) {
		order = append(order, "start-begin")
		bus.Publish(Close(nil))
		order = append(order, "start-end")
	})
	bus.Subscribe(CodeClose, func(e Event) {
		order = append(order, "close")
	})

	bus.Publish(Start(nil, "http://x"))

	assert.Equal(t, []string{"start-begin", "start-end", "close"}, order)
}

func TestBus_EnqueueThenFlushKeepsOrder(t *testing.T) {
	bus := NewBus()
	var got []Code
	bus.SubscribeAll(func(e Event) { got = append(got, e.Code) })

	bus.Enqueue(Start(nil, "u"))
	bus.Enqueue(HTTPStatus(nil, 200, "OK"))
	assert.Empty(t, got, "enqueue alone must not deliver")
	bus.Flush()

	assert.Equal(t, []Code{CodeStart, CodeHTTPStatus}, got)
}

func TestBus_DetachedDuringDrainIsSkipped(t *testing.T) {
	bus := NewBus()
	var second int
	var sub Subscription

	bus.SubscribeAll(func(e Event) {
		if e.Code == CodeStart {
			bus.Unsubscribe(sub)
		}
	})
	sub = bus.SubscribeAll(func(Event) { second++ })

	bus.Enqueue(Start(nil, "u"))
	bus.Enqueue(Close(nil))
	bus.Flush()

	// The second listener was detached while the START event was being
	// delivered, before its own turn.
	assert.Equal(t, 0, second)
}

func TestBus_ConcurrentPublishersDeliverEverything(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(Close(nil))
			}
		}()
	}
	wg.Wait()
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 800, count)
}

func TestBus_PanickingListenerIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	utils.SetLogOutput(&logs, zerolog.ErrorLevel)
	t.Cleanup(utils.CloseDebug)

	bus := NewBus()
	var got []Code
	bus.Subscribe(CodeStart, func(Event) { panic("boom") })
	bus.SubscribeAll(func(e Event) { got = append(got, e.Code) })

	assert.NotPanics(t, func() {
		bus.Enqueue(Start(fakeTarget("a"), "u"))
		bus.Enqueue(Close(fakeTarget("a")))
		bus.Flush()
	})
	assert.Equal(t, []Code{CodeStart, CodeClose}, got)
	assert.Contains(t, logs.String(), "listener panicked")
	assert.Contains(t, logs.String(), "boom")

	bus.Publish(Close(nil))
	assert.Len(t, got, 3)
}

func TestErrorEvent_Codes(t *testing.T) {
	c := types.ByteCursor{Loaded: 10, Total: 100}

	e := Error(fakeTarget("a"), &types.HTTPStatusError{Code: 503}, c)
	assert.Equal(t, CodeError, e.Code)
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, 503, e.ErrorCode)
	assert.Equal(t, 503, e.HTTPStatus)
	assert.Equal(t, "a", e.TargetID())

	e = Error(nil, types.ErrUnknownSize, types.NewCursor())
	assert.Equal(t, types.CodeUnknownSize, e.ErrorCode)
	assert.Equal(t, 0, e.HTTPStatus)
	assert.Equal(t, "", e.TargetID())
}

func TestCodeAndLevelStrings(t *testing.T) {
	assert.Equal(t, "httpStatus", CodeHTTPStatus.String())
	assert.Equal(t, "networkRecovered", CodeNetworkRecovered.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "code(99)", Code(99).String())
}
