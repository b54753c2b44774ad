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

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

const (
	DirectionAffinityScorerType = "direction-affinity-scorer"
)

var _ framework.Scorer = &DirectionAffinityScorer{}

func DirectionAffinityScorerFactory(name string, _ json.RawMessage) (plugins.Plugin, error) {
	return NewDirectionAffinityScorer().WithName(name), nil
}

func NewDirectionAffinityScorer() *DirectionAffinityScorer {
	return &DirectionAffinityScorer{
		typedName: plugins.TypedName{Type: DirectionAffinityScorerType, Name: DirectionAffinityScorerType},
	}
}

// DirectionAffinityScorer prefers cars that are already travelling in the direction of the hall call.
type DirectionAffinityScorer struct {
	typedName plugins.TypedName
}

func (s *DirectionAffinityScorer) TypedName() plugins.TypedName {
	return s.typedName
}

func (s *DirectionAffinityScorer) WithName(name string) *DirectionAffinityScorer {
	s.typedName.Name = name
	return s
}

func (s *DirectionAffinityScorer) Score(_ context.Context, request types.Request, cars []types.CarSnapshot) map[types.CarID]float64 {
	scores := make(map[types.CarID]float64, len(cars))
	for _, car := range cars {
		if car.Motion.Direction() == request.Direction {
			scores[car.ID] = 1.0
		} else {
			scores[car.ID] = 0.0
		}
	}
	return scores
}
