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

package filter

import (
	"context"
	"encoding/json"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

const (
	SuitableCarFilterType = "suitable-car-filter"
)

// compile-time type validation
var _ framework.Filter = &SuitableCarFilter{}

// SuitableCarFilterFactory defines the factory function for SuitableCarFilter.
func SuitableCarFilterFactory(name string, _ json.RawMessage) (plugins.Plugin, error) {
	return NewSuitableCarFilter().WithName(name), nil
}

// NewSuitableCarFilter initializes a new SuitableCarFilter and returns its pointer.
func NewSuitableCarFilter() *SuitableCarFilter {
	return &SuitableCarFilter{
		typedName: plugins.TypedName{Type: SuitableCarFilterType, Name: SuitableCarFilterType},
	}
}

// SuitableCarFilter keeps cars that can answer a hall call without reversing: idle cars, and cars already moving
// in the call's direction that have not yet passed the call's floor.
type SuitableCarFilter struct {
	typedName plugins.TypedName
}

// TypedName returns the type and name tuple of this plugin instance.
func (f *SuitableCarFilter) TypedName() plugins.TypedName {
	return f.typedName
}

// WithName sets the name of the filter.
func (f *SuitableCarFilter) WithName(name string) *SuitableCarFilter {
	f.typedName.Name = name
	return f
}

// Filter filters out cars that are not suitable for the request.
func (f *SuitableCarFilter) Filter(_ context.Context, request types.Request, cars []types.CarSnapshot) []types.CarSnapshot {
	return filterCars(cars, func(car types.CarSnapshot) bool { return Suitable(car, request) })
}

// Suitable reports whether car can take request.
func Suitable(car types.CarSnapshot, request types.Request) bool {
	target := request.TargetFloor
	switch car.Motion {
	case types.Idle:
		return true
	case types.MovingUp:
		return request.Direction == types.Up && car.Floor <= target
	case types.MovingDown:
		return request.Direction == types.Down && car.Floor >= target
	}
	return false
}

func filterCars(cars []types.CarSnapshot, keep func(types.CarSnapshot) bool) []types.CarSnapshot {
	filtered := []types.CarSnapshot{}
	for _, car := range cars {
		if keep(car) {
			filtered = append(filtered, car)
		}
	}
	return filtered
}
