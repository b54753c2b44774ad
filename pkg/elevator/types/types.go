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

package types

import (
	"fmt"
	"strings"

	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

// CarID identifies a car within a fleet. Ids are dense, starting at 0.
type CarID int

// Direction is a travel direction.
type Direction int

const (
	// Unspecified is the direction of a cabin call; it is implied by the car's position.
	Unspecified Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Unspecified"
	}
}

// ParseDirection parses "up" or "down", case insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return Unspecified, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("unknown direction %q", s)}
}

// Origin tells where a request was placed.
type Origin int

const (
	// Hall is a call from a floor landing.
	Hall Origin = iota
	// Cabin is a destination selected by a rider inside a car.
	Cabin
)

func (o Origin) String() string {
	if o == Cabin {
		return "Cabin"
	}
	return "Hall"
}

// MotionState is the state of a car's motion state machine.
type MotionState int

const (
	Idle MotionState = iota
	MovingUp
	MovingDown
)

func (m MotionState) String() string {
	switch m {
	case MovingUp:
		return "MovingUp"
	case MovingDown:
		return "MovingDown"
	default:
		return "Idle"
	}
}

// Direction returns the travel direction of the state, Unspecified when idle.
func (m MotionState) Direction() Direction {
	switch m {
	case MovingUp:
		return Up
	case MovingDown:
		return Down
	default:
		return Unspecified
	}
}

// Request is a desired stop. It is a value type and never changes once built.
type Request struct {
	TargetFloor int
	Direction   Direction
	Origin      Origin
}

// NewHallCall builds a Hall request. A hall call must carry Up or Down.
func NewHallCall(floor int, dir Direction) (Request, error) {
	if dir != Up && dir != Down {
		return Request{}, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("hall call at floor %d needs a direction, got %s", floor, dir)}
	}
	return Request{TargetFloor: floor, Direction: dir, Origin: Hall}, nil
}

// NewCabinCall builds a Cabin request for the given destination floor.
func NewCabinCall(floor int) Request {
	return Request{TargetFloor: floor, Direction: Unspecified, Origin: Cabin}
}

func (r Request) String() string {
	if r.Origin == Cabin {
		return fmt.Sprintf("Cabin request to floor %d", r.TargetFloor)
	}
	return fmt.Sprintf("Hall request at floor %d going %s", r.TargetFloor, r.Direction)
}

// CarSnapshot is a consistent copy of a car's state, taken while holding the car's lock.
type CarSnapshot struct {
	ID        CarID
	Floor     int
	Motion    MotionState
	UpStops   []int
	DownStops []int
}

func (s CarSnapshot) String() string {
	return fmt.Sprintf("{car %d floor %d %s up=%v down=%v}", s.ID, s.Floor, s.Motion, s.UpStops, s.DownStops)
}
