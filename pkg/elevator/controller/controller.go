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

// Package controller runs a fleet of cars. It owns one worker goroutine per car, routes hall calls through a
// dispatch strategy and forwards cabin calls straight to their car.
//
// Cars are only ever locked one at a time: dispatch decisions are taken on per-car snapshots, and the chosen car is
// then locked on its own to receive the request. A snapshot may be stale by the time the request lands; the car's
// motion state machine accounts for that.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/car"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/metrics"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/telemetry"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

const tracerName = "github.com/zetxqx/elevator-dispatch/pkg/elevator/controller"

type lifecycle int

const (
	created lifecycle = iota
	running
	stopped
)

// Controller is the entry point of the dispatcher. It is safe for concurrent use.
type Controller struct {
	// --- Immutable dependencies (set at construction) ---

	config    Config
	logger    logr.Logger
	clock     clock.WithTicker
	strategy  framework.Strategy
	observers []telemetry.Observer
	// cars is fixed at construction and never resized, so it is read without a lock.
	cars      []*car.Car
	hallCalls *hallCallRegistry

	// --- Lifecycle state ---

	// mu guards state. Requests hold it for reading for their whole duration so that Shutdown, which takes it for
	// writing, never returns while a request is still being delivered.
	mu     sync.RWMutex
	state  lifecycle
	cancel context.CancelFunc

	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// Option is a function that applies a configuration change to a Controller.
type Option func(*Controller)

// WithStrategy replaces the default nearest-car dispatch strategy.
func WithStrategy(s framework.Strategy) Option {
	return func(c *Controller) {
		c.strategy = s
	}
}

// WithObservers registers observers on every car of the fleet.
func WithObservers(observers ...telemetry.Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, observers...)
	}
}

// WithClock sets the clock driving the workers and hall call timestamps.
func WithClock(clk clock.WithTicker) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// NewController builds the fleet. Every car starts idle on the configured ground floor. Workers only run once Start
// is called.
func NewController(config Config, logger logr.Logger, opts ...Option) (*Controller, error) {
	if err := config.validate(); err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: err.Error()}
	}

	c := &Controller{
		config: config,
		logger: logger.WithName("elevator-controller"),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		c.strategy = dispatch.NewNearestCarStrategy()
	}

	c.hallCalls = newHallCallRegistry(config.HallCallTTL, c.clock, c.logger)
	observers := append([]telemetry.Observer{}, c.observers...)
	observers = append(observers, &telemetry.ObserverFuncs{Stopped: c.hallCalls.OnStopped})

	c.cars = make([]*car.Car, config.FleetSize)
	for i := range c.cars {
		c.cars[i] = car.New(types.CarID(i), config.GroundFloor, c.logger, observers...)
	}
	c.logger.Info("Fleet created", "cars", config.FleetSize, "groundFloor", config.GroundFloor, "tickInterval", config.TickInterval)
	return c, nil
}

// Start launches one worker per car. The workers stop when ctx is cancelled or Shutdown is called, whichever
// comes first. A Controller can only be started once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case running:
		return errutil.Error{Code: errutil.Internal, Msg: "controller already started"}
	case stopped:
		return errutil.Error{Code: errutil.Internal, Msg: "controller was shut down and cannot be restarted"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = running
	c.hallCalls.start()

	for _, cr := range c.cars {
		c.wg.Add(1)
		go c.runCar(runCtx, cr)
	}
	go func() {
		<-runCtx.Done()
		c.Shutdown()
	}()

	c.logger.Info("Controller started")
	return nil
}

// runCar is the worker loop of a single car: check for stop, wait one tick, check for stop again, then tick.
func (c *Controller) runCar(ctx context.Context, cr *car.Car) {
	defer c.wg.Done()
	logger := c.logger.WithValues("car", cr.ID())
	logger.V(logging.VERBOSE).Info("Car worker started")
	defer logger.V(logging.VERBOSE).Info("Car worker stopped")

	ticker := c.clock.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			return
		}
		cr.Tick()
	}
}

// Shutdown stops every worker and waits for them to exit. Once it returns no car ticks again and no observer is
// notified. Further requests fail with ServiceUnavailable; snapshots stay readable. Shutdown is idempotent.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.state = stopped
		cancel := c.cancel
		c.mu.Unlock()

		c.logger.Info("Shutting down controller and all car workers")
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		c.hallCalls.stop()
		c.logger.Info("All car workers have shut down")
	})
}

// RequestHallCall dispatches a hall call to one car and returns its id. It fails with BadRequest for a missing
// direction and with NoCapacity when no car is suitable; rejected calls are not queued.
func (c *Controller) RequestHallCall(ctx context.Context, floor int, dir types.Direction) (types.CarID, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "elevator.RequestHallCall", trace.WithAttributes(
		attribute.Int("elevator.floor", floor),
		attribute.String("elevator.direction", dir.String()),
	))
	defer span.End()

	id, err := c.requestHallCall(ctx, floor, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errutil.CanonicalCode(err))
		return 0, err
	}
	span.SetAttributes(attribute.Int("elevator.car", int(id)))
	return id, nil
}

func (c *Controller) requestHallCall(ctx context.Context, floor int, dir types.Direction) (types.CarID, error) {
	req, err := types.NewHallCall(floor, dir)
	if err != nil {
		metrics.RecordHallCall(dir.String(), metrics.HallCallRejected)
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == stopped {
		metrics.RecordHallCall(dir.String(), metrics.HallCallRejected)
		return 0, errutil.Error{Code: errutil.ServiceUnavailable, Msg: "controller is shut down"}
	}

	ctx = c.withLogger(ctx)
	logger := log.FromContext(ctx).WithValues("request", req.String())

	fleet := c.Cars()
	before := c.clock.Now()
	id, ok := c.strategy.SelectCar(ctx, fleet, req)
	metrics.RecordDispatchLatency(c.clock.Since(before))
	if !ok {
		metrics.RecordHallCall(dir.String(), metrics.HallCallNoCapacity)
		logger.V(logging.DEFAULT).Info("No suitable car for hall call")
		return 0, errutil.Error{Code: errutil.NoCapacity, Msg: fmt.Sprintf("no suitable car for %s", req)}
	}
	if int(id) < 0 || int(id) >= len(c.cars) {
		panic(fmt.Sprintf("invariant violation: strategy selected car %d outside a fleet of %d", id, len(c.cars)))
	}

	// Record before delivering so that a car already at the floor clears the assignment when it reports the stop.
	assignment := c.hallCalls.Record(floor, dir, id)
	c.cars[id].AddRequest(req)

	metrics.RecordHallCall(dir.String(), metrics.HallCallAssigned)
	logger.V(logging.VERBOSE).Info("Hall call assigned", "car", id, "id", assignment.ID)
	return id, nil
}

// SelectFloor adds a cabin call to the given car. It fails with UnknownCar for an id outside the fleet.
func (c *Controller) SelectFloor(ctx context.Context, id types.CarID, floor int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == stopped {
		metrics.RecordCabinCall(metrics.CabinCallRejected)
		return errutil.Error{Code: errutil.ServiceUnavailable, Msg: "controller is shut down"}
	}

	cr, err := c.car(id)
	if err != nil {
		metrics.RecordCabinCall(metrics.CabinCallUnknownCar)
		return err
	}
	req := types.NewCabinCall(floor)
	cr.AddRequest(req)

	metrics.RecordCabinCall(metrics.CabinCallAccepted)
	log.FromContext(c.withLogger(ctx)).V(logging.VERBOSE).Info("Cabin call accepted", "car", id, "request", req.String())
	return nil
}

// Cars returns a snapshot of every car, ordered by id. Each snapshot is consistent on its own; the set of snapshots
// is not taken atomically.
func (c *Controller) Cars() []types.CarSnapshot {
	out := make([]types.CarSnapshot, len(c.cars))
	for i, cr := range c.cars {
		out[i] = cr.Snapshot()
	}
	return out
}

// Car returns a snapshot of one car.
func (c *Controller) Car(id types.CarID) (types.CarSnapshot, error) {
	cr, err := c.car(id)
	if err != nil {
		return types.CarSnapshot{}, err
	}
	return cr.Snapshot(), nil
}

// PendingHallCalls lists hall call assignments that have not been served or expired yet.
func (c *Controller) PendingHallCalls() []HallCallAssignment {
	return c.hallCalls.Pending()
}

func (c *Controller) car(id types.CarID) (*car.Car, error) {
	if int(id) < 0 || int(id) >= len(c.cars) {
		return nil, errutil.Error{Code: errutil.UnknownCar, Msg: fmt.Sprintf("car %d does not exist in a fleet of %d", id, len(c.cars))}
	}
	return c.cars[id], nil
}

// withLogger puts the controller's logger into ctx unless the caller already provided one.
func (c *Controller) withLogger(ctx context.Context) context.Context {
	if _, err := logr.FromContext(ctx); err != nil {
		return log.IntoContext(ctx, c.logger)
	}
	return ctx
}
