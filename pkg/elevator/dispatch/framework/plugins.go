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

package framework

import (
	"context"
	"fmt"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

const (
	FilterExtensionPoint = "Filter"
	ScorerExtensionPoint = "Scorer"
	PickerExtensionPoint = "Picker"
)

// Strategy chooses the car that should answer a hall call. It works on snapshots only and never touches a car.
// It returns false when no car is suitable.
type Strategy interface {
	SelectCar(ctx context.Context, fleet []types.CarSnapshot, request types.Request) (types.CarID, bool)
}

// Filter defines the interface for filtering a list of cars based on the request.
type Filter interface {
	plugins.Plugin
	Filter(ctx context.Context, request types.Request, cars []types.CarSnapshot) []types.CarSnapshot
}

// Scorer defines the interface for scoring a list of cars based on the request.
// Scorers must score cars with a value within the range of [0,1] where 1 is the highest score.
// If a scorer returns value greater than 1, it will be treated as score 1.
// If a scorer returns value lower than 0, it will be treated as score 0.
type Scorer interface {
	plugins.Plugin
	Score(ctx context.Context, request types.Request, cars []types.CarSnapshot) map[types.CarID]float64
}

// Picker picks the final car to send the request to.
type Picker interface {
	plugins.Plugin
	Pick(ctx context.Context, scoredCars []ScoredCar) (types.CarID, bool)
}

// ScoredCar is a candidate car with its accumulated weighted score.
type ScoredCar struct {
	types.CarSnapshot
	Score float64
}

func (s ScoredCar) String() string {
	return fmt.Sprintf("{car %d score %.3f}", s.ID, s.Score)
}
