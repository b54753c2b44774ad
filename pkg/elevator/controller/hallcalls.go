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
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"k8s.io/utils/clock"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/telemetry"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// HallCallAssignment records which car was sent to answer a hall call.
type HallCallAssignment struct {
	ID         string
	Floor      int
	Direction  types.Direction
	Car        types.CarID
	AssignedAt time.Time
}

type hallCallKey struct {
	floor     int
	direction types.Direction
}

// hallCallRegistry keeps pending hall call assignments until the assigned car stops at the floor or the TTL runs out.
type hallCallRegistry struct {
	clock  clock.Clock
	logger logr.Logger
	cache  *ttlcache.Cache[hallCallKey, HallCallAssignment]

	// mu serializes the read-modify-write sequences of Record and OnStopped.
	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
}

var _ telemetry.StopObserver = &hallCallRegistry{}

func newHallCallRegistry(ttl time.Duration, clk clock.Clock, logger logr.Logger) *hallCallRegistry {
	r := &hallCallRegistry{
		clock:  clk,
		logger: logger.WithName("hall-calls"),
		cache: ttlcache.New(
			ttlcache.WithTTL[hallCallKey, HallCallAssignment](ttl),
			ttlcache.WithDisableTouchOnHit[hallCallKey, HallCallAssignment](),
		),
	}
	r.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[hallCallKey, HallCallAssignment]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		a := item.Value()
		r.logger.V(logging.VERBOSE).Info("Hall call expired before it was served", "id", a.ID, "floor", a.Floor,
			"direction", a.Direction.String(), "car", a.Car)
	})
	return r
}

// start runs the cache's expiry loop until stop is called.
func (r *hallCallRegistry) start() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	go r.cache.Start()
}

func (r *hallCallRegistry) stop() {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		r.stopOnce.Do(r.cache.Stop)
	}
}

// Record stores the assignment of a hall call to a car. A call that is already pending keeps its id and gets the new
// car and a fresh TTL.
func (r *hallCallRegistry) Record(floor int, dir types.Direction, car types.CarID) HallCallAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hallCallKey{floor: floor, direction: dir}
	assignment := HallCallAssignment{Floor: floor, Direction: dir, Car: car, AssignedAt: r.clock.Now()}
	if existing := r.cache.Get(key); existing != nil {
		assignment.ID = existing.Value().ID
	} else {
		assignment.ID = uuid.NewString()
	}
	r.cache.Set(key, assignment, ttlcache.DefaultTTL)
	return assignment
}

// OnStopped clears the calls at floor that were assigned to the car that stopped there. A stop that served one
// direction only clears that direction; Unspecified clears both.
func (r *hallCallRegistry) OnStopped(id types.CarID, floor int, served types.Direction) {
	dirs := []types.Direction{types.Up, types.Down}
	if served != types.Unspecified {
		dirs = []types.Direction{served}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dir := range dirs {
		key := hallCallKey{floor: floor, direction: dir}
		if item := r.cache.Get(key); item != nil && item.Value().Car == id {
			r.cache.Delete(key)
			r.logger.V(logging.DEBUG).Info("Hall call served", "id", item.Value().ID, "floor", floor, "car", id)
		}
	}
}

// Pending returns the unexpired assignments ordered by floor, then direction.
func (r *hallCallRegistry) Pending() []HallCallAssignment {
	items := r.cache.Items()
	out := make([]HallCallAssignment, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		out = append(out, item.Value())
	}
	slices.SortFunc(out, func(a, b HallCallAssignment) int {
		if c := cmp.Compare(a.Floor, b.Floor); c != 0 {
			return c
		}
		return cmp.Compare(a.Direction, b.Direction)
	})
	return out
}
