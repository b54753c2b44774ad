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

// Package motion implements the Idle / MovingUp / MovingDown state machine that drives a single car.
//
// The machine holds no state of its own. Both entry points operate on a State, which is the car's view of itself
// while its lock is held, so every decision and mutation here happens inside one critical section of that car.
//
// A moving car always settles to Idle once its current-direction stop set empties, even if stops are pending in the
// other direction. The next Idle tick then picks the new direction.
//
// Floors span the whole int range. A car only ever travels towards a floor held in one of its stop sets, so stepping
// never leaves that range.
package motion

import (
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// State is what the machine needs from a car. Implementations must only be handed out while the car's lock is held.
type State interface {
	Floor() int
	// SetFloor commits a new floor and notifies observers if it changed.
	SetFloor(floor int)
	Motion() types.MotionState
	// SetMotion commits a new motion state and notifies observers if it changed.
	SetMotion(m types.MotionState)
	UpStops() sets.Set[int]
	DownStops() sets.Set[int]
	// Stopped reports that the car served a stop at the given floor. served is the travel direction that was served
	// when the car still holds a stop at floor for the other direction, and Unspecified when no stop remains there.
	Stopped(floor int, served types.Direction)
}

// AddRequest routes a request into the up or down stop set. It never changes the motion state; the next Tick does.
func AddRequest(s State, req types.Request) {
	floor := s.Floor()
	target := req.TargetFloor

	switch s.Motion() {
	case types.Idle:
		switch {
		case target > floor:
			s.UpStops().Insert(target)
		case target < floor:
			s.DownStops().Insert(target)
		default:
			s.Stopped(floor, types.Unspecified)
		}

	case types.MovingUp:
		if req.Origin == types.Cabin {
			if target > floor {
				s.UpStops().Insert(target)
			} else {
				s.DownStops().Insert(target)
			}
			return
		}
		if req.Direction == types.Up && target >= floor {
			s.UpStops().Insert(target)
			return
		}
		// Down calls wait for the reversal. An Up call the car has already passed is behind it as well.
		s.DownStops().Insert(target)

	case types.MovingDown:
		if req.Origin == types.Cabin {
			if target < floor {
				s.DownStops().Insert(target)
			} else {
				s.UpStops().Insert(target)
			}
			return
		}
		if req.Direction == types.Down && target <= floor {
			s.DownStops().Insert(target)
			return
		}
		s.UpStops().Insert(target)
	}
}

// Tick advances the car by one time unit: at most one floor of travel or one state change.
func Tick(s State) {
	switch s.Motion() {
	case types.Idle:
		settle(s)
		switch {
		case s.UpStops().Len() > 0:
			s.SetMotion(types.MovingUp)
		case s.DownStops().Len() > 0:
			s.SetMotion(types.MovingDown)
		}

	case types.MovingUp:
		step(s, s.UpStops(), s.DownStops(), +1)

	case types.MovingDown:
		step(s, s.DownStops(), s.UpStops(), -1)
	}
}

// step moves one floor in direction delta towards the nearest stop in ahead. Stops in ahead that the car is at or
// has already passed are resolved first: the current floor is served in place, passed floors move to behind.
func step(s State, ahead, behind sets.Set[int], delta int) {
	if ahead.Len() == 0 {
		s.SetMotion(types.Idle)
		return
	}

	floor := s.Floor()
	for _, f := range ahead.UnsortedList() {
		if (f-floor)*delta < 0 {
			ahead.Delete(f)
			behind.Insert(f)
		}
	}

	switch {
	case ahead.Has(floor):
		ahead.Delete(floor)
		s.Stopped(floor, servedDirection(behind, floor, delta))
	case ahead.Len() > 0:
		next := nearest(ahead, delta)
		floor += delta
		s.SetFloor(floor)
		if floor == next {
			ahead.Delete(next)
			s.Stopped(next, servedDirection(behind, next, delta))
		}
	}

	if ahead.Len() == 0 {
		s.SetMotion(types.Idle)
	}
}

// settle re-routes stops of an idle car so that each set only holds floors in its own direction.
func settle(s State) {
	floor := s.Floor()
	up, down := s.UpStops(), s.DownStops()
	for _, f := range up.UnsortedList() {
		if f < floor {
			up.Delete(f)
			down.Insert(f)
		}
	}
	for _, f := range down.UnsortedList() {
		if f > floor {
			down.Delete(f)
			up.Insert(f)
		}
	}
	if up.Has(floor) || down.Has(floor) {
		up.Delete(floor)
		down.Delete(floor)
		s.Stopped(floor, types.Unspecified)
	}
}

// servedDirection is the direction a stop at floor served while travelling in direction delta. A floor the car
// still has to revisit in the other direction keeps its calls for that direction.
func servedDirection(behind sets.Set[int], floor, delta int) types.Direction {
	switch {
	case !behind.Has(floor):
		return types.Unspecified
	case delta > 0:
		return types.Up
	default:
		return types.Down
	}
}

func nearest(stops sets.Set[int], delta int) int {
	if delta > 0 {
		return slices.Min(stops.UnsortedList())
	}
	return slices.Max(stops.UnsortedList())
}
