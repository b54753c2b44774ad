/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"
	testclock "k8s.io/utils/clock/testing"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/metrics"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/telemetry"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

const testTick = 10 * time.Millisecond

// fleetRecorder collects notifications from every car.
type fleetRecorder struct {
	mu     sync.Mutex
	stops  map[types.CarID][]int
	floors int
}

func newFleetRecorder() *fleetRecorder {
	return &fleetRecorder{stops: map[types.CarID][]int{}}
}

func (r *fleetRecorder) observer() telemetry.Observer {
	return &telemetry.ObserverFuncs{
		FloorChanged: func(types.CarID, int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.floors++
		},
		Stopped: func(id types.CarID, floor int, _ types.Direction) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.stops[id] = append(r.stops[id], floor)
		},
	}
}

func (r *fleetRecorder) stopsOf(id types.CarID) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.stops[id]...)
}

func (r *fleetRecorder) floorChanges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.floors
}

type strategyFunc func(ctx context.Context, fleet []types.CarSnapshot, req types.Request) (types.CarID, bool)

func (f strategyFunc) SelectCar(ctx context.Context, fleet []types.CarSnapshot, req types.Request) (types.CarID, bool) {
	return f(ctx, fleet, req)
}

func newTestController(t *testing.T, fleetSize int, tick time.Duration, opts ...Option) *Controller {
	t.Helper()
	cfg, err := NewConfig(WithFleetSize(fleetSize), WithTickInterval(tick))
	require.NoError(t, err)
	c, err := NewController(*cfg, logging.NewTestLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func settled(c *Controller) bool {
	for _, snap := range c.Cars() {
		if snap.Motion != types.Idle || len(snap.UpStops) > 0 || len(snap.DownStops) > 0 {
			return false
		}
	}
	return true
}

func TestController_HallThenCabinCall(t *testing.T) {
	t.Parallel()
	ctx := logging.NewTestLoggerIntoContext(context.Background())
	fakeClock := testclock.NewFakeClock(time.Now())
	rec := newFleetRecorder()
	c := newTestController(t, 2, testTick, WithClock(fakeClock), WithObservers(rec.observer()))
	require.NoError(t, c.Start(ctx))

	id, err := c.RequestHallCall(ctx, 5, types.Up)
	require.NoError(t, err)
	assert.Equal(t, types.CarID(0), id, "both cars are idle on floor 1, the tie goes to car 0")
	require.NoError(t, c.SelectFloor(ctx, 0, 9))

	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		return cmp.Equal([]int{5, 9}, rec.stopsOf(0))
	}, 10*time.Second, time.Millisecond, "car 0 should stop at 5 and then 9")

	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		return settled(c)
	}, 10*time.Second, time.Millisecond)

	snap, err := c.Car(0)
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Floor)
	snap, err = c.Car(1)
	require.NoError(t, err)
	assert.Equal(t, types.CarSnapshot{ID: 1, Floor: 1, Motion: types.Idle, UpStops: []int{}, DownStops: []int{}}, snap)
	assert.Empty(t, rec.stopsOf(1))
	assert.Empty(t, c.PendingHallCalls())
}

func TestController_NearestCarWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fakeClock := testclock.NewFakeClock(time.Now())
	c := newTestController(t, 2, testTick, WithClock(fakeClock))
	require.NoError(t, c.Start(ctx))

	// Park car 1 on floor 8.
	require.NoError(t, c.SelectFloor(ctx, 1, 8))
	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		return settled(c)
	}, 10*time.Second, time.Millisecond)

	id, err := c.RequestHallCall(ctx, 6, types.Down)
	require.NoError(t, err)
	assert.Equal(t, types.CarID(1), id, "car 1 at floor 8 is closer to floor 6 than car 0 at floor 1")
}

func TestController_NoCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fakeClock := testclock.NewFakeClock(time.Now())
	c := newTestController(t, 1, testTick, WithClock(fakeClock))
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.SelectFloor(ctx, 0, 10))
	require.Eventually(t, func() bool {
		snap, _ := c.Car(0)
		if snap.Motion == types.MovingUp && snap.Floor >= 2 {
			return true
		}
		fakeClock.Step(testTick)
		return false
	}, 10*time.Second, time.Millisecond)

	_, err := c.RequestHallCall(ctx, 1, types.Up)
	require.Error(t, err)
	assert.Equal(t, errutil.NoCapacity, errutil.CanonicalCode(err))
	assert.Empty(t, c.PendingHallCalls(), "rejected calls are not queued")
}

func TestController_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestController(t, 2, testTick)

	_, err := c.RequestHallCall(ctx, 3, types.Unspecified)
	assert.Equal(t, errutil.BadRequest, errutil.CanonicalCode(err))

	for _, id := range []types.CarID{-1, 2, 100} {
		err := c.SelectFloor(ctx, id, 3)
		assert.Equal(t, errutil.UnknownCar, errutil.CanonicalCode(err), "SelectFloor on car %d", id)
		_, err = c.Car(id)
		assert.Equal(t, errutil.UnknownCar, errutil.CanonicalCode(err), "Car(%d)", id)
	}

	_, err = NewController(Config{}, logging.NewTestLogger())
	assert.Equal(t, errutil.BadConfiguration, errutil.CanonicalCode(err))
}

func TestController_CustomStrategy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var seen []types.CarSnapshot
	strategy := strategyFunc(func(_ context.Context, fleet []types.CarSnapshot, _ types.Request) (types.CarID, bool) {
		seen = fleet
		return 2, true
	})
	c := newTestController(t, 3, testTick, WithStrategy(strategy))

	id, err := c.RequestHallCall(ctx, 4, types.Down)
	require.NoError(t, err)
	assert.Equal(t, types.CarID(2), id)
	assert.Len(t, seen, 3)

	snap, err := c.Car(2)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, snap.UpStops)
}

// TestController_ConcurrentRequests fires hall and cabin calls from many goroutines against running workers. Every
// accepted request must be served by the car it went to.
func TestController_ConcurrentRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := newFleetRecorder()
	c := newTestController(t, 3, time.Millisecond, WithObservers(rec.observer()))
	require.NoError(t, c.Start(ctx))

	var mu sync.Mutex
	requested := map[types.CarID]sets.Set[int]{}
	accept := func(id types.CarID, floor int) {
		mu.Lock()
		defer mu.Unlock()
		if requested[id] == nil {
			requested[id] = sets.New[int]()
		}
		requested[id].Insert(floor)
	}

	var wg sync.WaitGroup
	for p := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rnd := rand.New(rand.NewPCG(uint64(p), 42))
			for range 25 {
				floor := 1 + rnd.IntN(20)
				if rnd.IntN(2) == 0 {
					id := types.CarID(rnd.IntN(3))
					if err := c.SelectFloor(ctx, id, floor); err == nil {
						accept(id, floor)
					}
					continue
				}
				dir := types.Up
				if rnd.IntN(2) == 0 {
					dir = types.Down
				}
				if id, err := c.RequestHallCall(ctx, floor, dir); err == nil {
					accept(id, floor)
				} else {
					assert.Equal(t, errutil.NoCapacity, errutil.CanonicalCode(err))
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return settled(c) }, 20*time.Second, 5*time.Millisecond)
	c.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	for id, floors := range requested {
		served := sets.New(rec.stopsOf(id)...)
		if diff := cmp.Diff(sets.List(floors), sets.List(served)); diff != "" {
			t.Errorf("car %d served floors differ from requested floors (-want +got): %s", id, diff)
		}
	}
}

func TestController_Shutdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := newFleetRecorder()
	c := newTestController(t, 2, time.Millisecond, WithObservers(rec.observer()))
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.SelectFloor(ctx, 0, 1_000_000))
	require.Eventually(t, func() bool { return rec.floorChanges() > 3 }, 10*time.Second, time.Millisecond)

	c.Shutdown()
	frozen := c.Cars()
	changes := rec.floorChanges()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, changes, rec.floorChanges(), "no floor notification after Shutdown returns")
	assert.Equal(t, frozen, c.Cars(), "state stays frozen after Shutdown")
	assert.Equal(t, types.MovingUp, frozen[0].Motion)

	err := c.SelectFloor(ctx, 1, 3)
	assert.Equal(t, errutil.ServiceUnavailable, errutil.CanonicalCode(err))
	_, err = c.RequestHallCall(ctx, 3, types.Up)
	assert.Equal(t, errutil.ServiceUnavailable, errutil.CanonicalCode(err))

	err = c.Start(ctx)
	assert.Equal(t, errutil.Internal, errutil.CanonicalCode(err))

	// Idempotent.
	c.Shutdown()
}

// TestController_StopKeepsOppositeHallCall has a car on its way up pass a floor that also has a down call queued for
// the way back. Stopping there going up must only serve the up call.
func TestController_StopKeepsOppositeHallCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fakeClock := testclock.NewFakeClock(time.Now())
	rec := newFleetRecorder()
	c := newTestController(t, 1, testTick, WithClock(fakeClock), WithObservers(rec.observer()),
		WithStrategy(strategyFunc(func(context.Context, []types.CarSnapshot, types.Request) (types.CarID, bool) {
			return 0, true
		})))
	require.NoError(t, c.SelectFloor(ctx, 0, 8))
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		snap, err := c.Car(0)
		return err == nil && snap.Motion == types.MovingUp
	}, 10*time.Second, time.Millisecond)

	_, err := c.RequestHallCall(ctx, 5, types.Up)
	require.NoError(t, err)
	down, err := c.RequestHallCall(ctx, 5, types.Down)
	require.NoError(t, err)
	assert.Equal(t, types.CarID(0), down)

	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		pending := c.PendingHallCalls()
		return cmp.Equal([]int{5}, rec.stopsOf(0)) && len(pending) == 1 && pending[0].Direction == types.Down
	}, 10*time.Second, time.Millisecond, "the stop at 5 going up should leave the down call pending")

	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		return len(c.PendingHallCalls()) == 0
	}, 10*time.Second, time.Millisecond)
	assert.Equal(t, []int{5, 8, 5}, rec.stopsOf(0))
}

func TestController_ShutdownWaitsForInFlightTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce, releaseOnce sync.Once
	blocking := &telemetry.ObserverFuncs{
		FloorChanged: func(types.CarID, int) {
			enterOnce.Do(func() {
				close(entered)
				<-release
			})
		},
	}
	c := newTestController(t, 1, time.Millisecond, WithObservers(blocking))
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.SelectFloor(ctx, 0, 5))

	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatal("car never moved")
	}

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a tick was still notifying an observer")
	case <-time.After(50 * time.Millisecond):
	}

	releaseOnce.Do(func() { close(release) })
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown did not return once the tick finished")
	}
	snap, err := c.Car(0)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Floor, "no tick runs after the in-flight one")
}

func TestController_StartTwice(t *testing.T) {
	t.Parallel()
	c := newTestController(t, 1, testTick)
	require.NoError(t, c.Start(context.Background()))
	err := c.Start(context.Background())
	assert.Equal(t, errutil.Internal, errutil.CanonicalCode(err))
}

func TestController_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()
	c := newTestController(t, 1, testTick)
	c.Shutdown()
	err := c.SelectFloor(context.Background(), 0, 2)
	assert.Equal(t, errutil.ServiceUnavailable, errutil.CanonicalCode(err))
}

func TestController_ContextCancellationShutsDown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestController(t, 1, testTick)
	require.NoError(t, c.Start(ctx))

	cancel()
	require.Eventually(t, func() bool {
		err := c.SelectFloor(context.Background(), 0, 2)
		return errutil.CanonicalCode(err) == errutil.ServiceUnavailable
	}, 5*time.Second, time.Millisecond)
}

func TestController_PendingHallCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fakeClock := testclock.NewFakeClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	c := newTestController(t, 1, testTick, WithClock(fakeClock))

	_, err := c.RequestHallCall(ctx, 4, types.Down)
	require.NoError(t, err)
	_, err = c.RequestHallCall(ctx, 3, types.Up)
	require.NoError(t, err)

	pending := c.PendingHallCalls()
	require.Len(t, pending, 2)
	assert.Equal(t, 3, pending[0].Floor)
	assert.Equal(t, types.Up, pending[0].Direction)
	assert.Equal(t, 4, pending[1].Floor)
	assert.Equal(t, types.CarID(0), pending[1].Car)
	assert.Equal(t, fakeClock.Now(), pending[1].AssignedAt)
	assert.NotEqual(t, pending[0].ID, pending[1].ID)

	// Re-submitting keeps the id.
	_, err = c.RequestHallCall(ctx, 4, types.Down)
	require.NoError(t, err)
	assert.Equal(t, pending[1].ID, c.PendingHallCalls()[1].ID)

	// A call at the car's own floor is served on the spot and never stays pending.
	_, err = c.RequestHallCall(ctx, 1, types.Up)
	require.NoError(t, err)
	assert.Len(t, c.PendingHallCalls(), 2)

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool {
		fakeClock.Step(testTick)
		return len(c.PendingHallCalls()) == 0
	}, 10*time.Second, time.Millisecond)
}

// dispatchSeconds returns the accumulated dispatch latency exported by the metrics package.
func dispatchSeconds(t *testing.T) float64 {
	t.Helper()
	families, err := crmetrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "elevator_dispatch_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleSum()
		}
	}
	t.Fatal("dispatch latency histogram is not registered")
	return 0
}

func TestController_DispatchLatencyFollowsClock(t *testing.T) {
	metrics.Register()
	ctx := context.Background()
	fakeClock := testclock.NewFakeClock(time.Now())
	c := newTestController(t, 2, testTick, WithClock(fakeClock),
		WithStrategy(strategyFunc(func(context.Context, []types.CarSnapshot, types.Request) (types.CarID, bool) {
			fakeClock.Step(2 * time.Second)
			return 1, true
		})))

	before := dispatchSeconds(t)
	id, err := c.RequestHallCall(ctx, 3, types.Up)
	require.NoError(t, err)
	assert.Equal(t, types.CarID(1), id)
	assert.InDelta(t, 2.0, dispatchSeconds(t)-before, 1e-9)
}
