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

// Package dispatch assembles the plugin-based dispatch strategies.
package dispatch

import (
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/plugins/filter"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/plugins/picker"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/plugins/scorer"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
)

// NewNearestCarStrategy returns the default strategy: among suitable cars, the one closest to the call's floor,
// ties going to the lowest car id.
func NewNearestCarStrategy() *framework.Profile {
	return framework.NewProfile().
		WithFilters(filter.NewSuitableCarFilter()).
		WithScorers(framework.NewWeightedScorer(scorer.NewDistanceScorer(), 1)).
		WithPicker(picker.NewLowestIDPicker())
}

// RegisterAllPlugins registers the factory functions of all known dispatch plugins.
func RegisterAllPlugins() {
	plugins.Register(filter.SuitableCarFilterType, filter.SuitableCarFilterFactory)
	plugins.Register(filter.IdleCarFilterType, filter.IdleCarFilterFactory)
	plugins.Register(scorer.DistanceScorerType, scorer.DistanceScorerFactory)
	plugins.Register(scorer.DirectionAffinityScorerType, scorer.DirectionAffinityScorerFactory)
	plugins.Register(picker.LowestIDPickerType, picker.LowestIDPickerFactory)
}
