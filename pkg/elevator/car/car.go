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

package car

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/motion"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/telemetry"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// Car is a single elevator car. Its state is private and only touched through withLock, so every read and every
// mutation, including observer notifications, happens inside one critical section.
type Car struct {
	id     types.CarID
	logger logr.Logger

	mu        sync.Mutex
	floor     int
	motion    types.MotionState
	upStops   sets.Set[int]
	downStops sets.Set[int]
	observers []telemetry.Observer
}

// New creates an idle car with no pending stops at the given floor.
func New(id types.CarID, floor int, logger logr.Logger, observers ...telemetry.Observer) *Car {
	return &Car{
		id:        id,
		logger:    logger.WithValues("car", id),
		floor:     floor,
		motion:    types.Idle,
		upStops:   sets.New[int](),
		downStops: sets.New[int](),
		observers: observers,
	}
}

// ID returns the car's fleet index.
func (c *Car) ID() types.CarID {
	return c.id
}

// AddObserver registers an additional observer. It receives notifications for changes committed after it is added.
func (c *Car) AddObserver(o telemetry.Observer) {
	if o == nil {
		return
	}
	c.withLock(func(lc *lockedCar) {
		c.observers = append(c.observers, o)
	})
}

// AddRequest enqueues a request. It never moves the car.
func (c *Car) AddRequest(req types.Request) {
	c.withLock(func(lc *lockedCar) {
		c.logger.V(logging.DEBUG).Info("Adding request", "request", req.String(), "floor", c.floor, "motion", c.motion.String())
		motion.AddRequest(lc, req)
	})
}

// Tick advances the car by one time unit.
func (c *Car) Tick() {
	c.withLock(func(lc *lockedCar) {
		motion.Tick(lc)
		if c.motion == types.Idle && (c.upStops.Len() > 0 || c.downStops.Len() > 0) {
			c.logger.V(logging.TRACE).Info("Settled with stops pending", "up", sets.List(c.upStops), "down", sets.List(c.downStops))
		}
	})
}

// Snapshot returns a consistent copy of the car's state.
func (c *Car) Snapshot() types.CarSnapshot {
	var snap types.CarSnapshot
	c.withLock(func(lc *lockedCar) {
		snap = types.CarSnapshot{
			ID:        c.id,
			Floor:     c.floor,
			Motion:    c.motion,
			UpStops:   sets.List(c.upStops),
			DownStops: sets.List(c.downStops),
		}
	})
	return snap
}

func (c *Car) String() string {
	return c.Snapshot().String()
}

// withLock runs fn with the car's lock held. fn receives the car's motion.State view, which is only valid for the
// duration of the call.
func (c *Car) withLock(fn func(lc *lockedCar)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lc := &lockedCar{c: c}
	fn(lc)
	lc.c = nil
}

// lockedCar is the motion.State view of a car whose lock is held.
type lockedCar struct {
	c *Car
}

var _ motion.State = &lockedCar{}

func (lc *lockedCar) car() *Car {
	if lc.c == nil {
		panic("invariant violation: car state used outside of its lock")
	}
	return lc.c
}

func (lc *lockedCar) Floor() int { return lc.car().floor }

func (lc *lockedCar) SetFloor(floor int) {
	c := lc.car()
	if c.floor == floor {
		return
	}
	c.floor = floor
	c.notify("floor", func(o telemetry.Observer) { o.OnFloorChanged(c.id, floor) })
}

func (lc *lockedCar) Motion() types.MotionState { return lc.car().motion }

func (lc *lockedCar) SetMotion(m types.MotionState) {
	c := lc.car()
	if c.motion == m {
		return
	}
	c.motion = m
	c.notify("direction", func(o telemetry.Observer) { o.OnDirectionChanged(c.id, m) })
}

func (lc *lockedCar) UpStops() sets.Set[int]   { return lc.car().upStops }
func (lc *lockedCar) DownStops() sets.Set[int] { return lc.car().downStops }

func (lc *lockedCar) Stopped(floor int, served types.Direction) {
	c := lc.car()
	c.logger.V(logging.VERBOSE).Info("Stopped at floor", "floor", floor, "served", served.String())
	c.notify("stop", func(o telemetry.Observer) {
		if so, ok := o.(telemetry.StopObserver); ok {
			so.OnStopped(c.id, floor, served)
		}
	})
}

// notify delivers one notification to every observer. A panicking observer is logged and skipped; it does not
// prevent delivery to the others or abort the change being reported.
func (c *Car) notify(kind string, deliver func(o telemetry.Observer)) {
	for i, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("observer panic: %v", r), "Observer failed", "notification", kind, "observer", i)
				}
			}()
			deliver(o)
		}()
	}
}
