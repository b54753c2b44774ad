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

package scorer

import (
	"context"
	"encoding/json"
	"math"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

const (
	DistanceScorerType = "distance-scorer"
)

// compile-time type assertion
var _ framework.Scorer = &DistanceScorer{}

// DistanceScorerFactory defines the factory function for DistanceScorer.
func DistanceScorerFactory(name string, _ json.RawMessage) (plugins.Plugin, error) {
	return NewDistanceScorer().WithName(name), nil
}

// NewDistanceScorer initializes a new DistanceScorer and returns its pointer.
func NewDistanceScorer() *DistanceScorer {
	return &DistanceScorer{
		typedName: plugins.TypedName{Type: DistanceScorerType, Name: DistanceScorerType},
	}
}

// DistanceScorer scores candidate cars by how far they are from the requested floor.
// the closer the car is, the higher score it will get.
type DistanceScorer struct {
	typedName plugins.TypedName
}

// TypedName returns the type and name tuple of this plugin instance.
func (s *DistanceScorer) TypedName() plugins.TypedName {
	return s.typedName
}

// WithName sets the name of the scorer.
func (s *DistanceScorer) WithName(name string) *DistanceScorer {
	s.typedName.Name = name
	return s
}

// Score returns the scoring result for the given list of cars.
func (s *DistanceScorer) Score(_ context.Context, request types.Request, cars []types.CarSnapshot) map[types.CarID]float64 {
	minDistance := uint(math.MaxUint)
	maxDistance := uint(0)
	for _, car := range cars {
		d := distance(car, request)
		minDistance = min(minDistance, d)
		maxDistance = max(maxDistance, d)
	}

	scores := make(map[types.CarID]float64, len(cars))
	for _, car := range cars {
		if maxDistance == minDistance {
			// If all cars are equally far, return a neutral score
			scores[car.ID] = 1.0
			continue
		}
		scores[car.ID] = float64(maxDistance-distance(car, request)) / float64(maxDistance-minDistance)
	}
	return scores
}

// distance is computed in uint so that floors far apart in the int range do not overflow.
func distance(car types.CarSnapshot, request types.Request) uint {
	if car.Floor >= request.TargetFloor {
		return uint(car.Floor) - uint(request.TargetFloor)
	}
	return uint(request.TargetFloor) - uint(car.Floor)
}
