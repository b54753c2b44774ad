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

package picker

import (
	"context"
	"encoding/json"
	"slices"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

const (
	LowestIDPickerType = "lowest-id-picker"
)

// compile-time type validation
var _ framework.Picker = &LowestIDPicker{}

// LowestIDPickerFactory defines the factory function for LowestIDPicker.
func LowestIDPickerFactory(name string, _ json.RawMessage) (plugins.Plugin, error) {
	return NewLowestIDPicker().WithName(name), nil
}

// NewLowestIDPicker initializes a new LowestIDPicker and returns its pointer.
func NewLowestIDPicker() *LowestIDPicker {
	return &LowestIDPicker{
		typedName: plugins.TypedName{Type: LowestIDPickerType, Name: LowestIDPickerType},
	}
}

// LowestIDPicker picks the car with the maximum score. Equal scores go to the car with the lowest id, which keeps
// dispatch deterministic.
type LowestIDPicker struct {
	typedName plugins.TypedName
}

// WithName sets the picker's name
func (p *LowestIDPicker) WithName(name string) *LowestIDPicker {
	p.typedName.Name = name
	return p
}

// TypedName returns the type and name tuple of this plugin instance.
func (p *LowestIDPicker) TypedName() plugins.TypedName {
	return p.typedName
}

// Pick selects the car with the maximum score from the list of candidates.
func (p *LowestIDPicker) Pick(ctx context.Context, scoredCars []framework.ScoredCar) (types.CarID, bool) {
	log.FromContext(ctx).V(logging.DEBUG).Info("Selecting car from candidates by max score", "num-of-candidates", len(scoredCars))
	if len(scoredCars) == 0 {
		return 0, false
	}

	best := slices.MinFunc(scoredCars, func(i, j framework.ScoredCar) int { // highest score first, then lowest id
		if i.Score > j.Score {
			return -1
		}
		if i.Score < j.Score {
			return 1
		}
		return int(i.ID) - int(j.ID)
	})
	return best.ID, true
}
