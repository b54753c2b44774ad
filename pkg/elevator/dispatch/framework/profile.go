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
	"errors"
	"fmt"

	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/metrics"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// NewProfile creates a new Profile object and returns its pointer.
func NewProfile() *Profile {
	return &Profile{
		filters: []Filter{},
		scorers: []*WeightedScorer{},
		clock:   clock.RealClock{},
		// picker remains nil since profile doesn't support multiple pickers
	}
}

// Profile is a Strategy built from plugins. A dispatch cycle runs Filters, then weighted Scorers, then the Picker.
type Profile struct {
	filters []Filter
	scorers []*WeightedScorer
	picker  Picker
	// clock times plugin runs for the plugin latency metric.
	clock clock.PassiveClock
}

var _ Strategy = &Profile{}

// WithFilters sets the given filter plugins as the Filter plugins.
// if the Profile has Filter plugins, this call replaces the existing plugins with the given ones.
func (p *Profile) WithFilters(filters ...Filter) *Profile {
	p.filters = filters
	return p
}

// WithScorers sets the given scorer plugins as the Scorer plugins.
// if the Profile has Scorer plugins, this call replaces the existing plugins with the given ones.
func (p *Profile) WithScorers(scorers ...*WeightedScorer) *Profile {
	p.scorers = scorers
	return p
}

// WithPicker sets the given picker plugins as the Picker plugin.
// if the Profile has Picker plugin, this call replaces the existing plugin with the given one.
func (p *Profile) WithPicker(picker Picker) *Profile {
	p.picker = picker
	return p
}

// WithClock sets the clock used to time plugin runs.
func (p *Profile) WithClock(clk clock.PassiveClock) *Profile {
	p.clock = clk
	return p
}

// AddPlugins adds the given plugins to the profile according to the interfaces each plugin implements.
// A scorer must be wrapped with NewWeightedScorer to provide a weight.
func (p *Profile) AddPlugins(pluginObjects ...plugins.Plugin) error {
	for _, plugin := range pluginObjects {
		if weightedScorer, ok := plugin.(*WeightedScorer); ok {
			p.scorers = append(p.scorers, weightedScorer)
			plugin = weightedScorer.Scorer // if we got WeightedScorer, unwrap the plugin
		} else if scorer, ok := plugin.(Scorer); ok { // if we got a Scorer instead of WeightedScorer that's an error.
			return fmt.Errorf("failed to register scorer '%s' without a weight. follow function documentation to register a scorer", scorer.TypedName())
		}
		if filter, ok := plugin.(Filter); ok {
			p.filters = append(p.filters, filter)
		}
		if picker, ok := plugin.(Picker); ok {
			if p.picker != nil {
				return fmt.Errorf("failed to set '%s' as picker, already have a registered picker plugin '%s'", picker.TypedName(), p.picker.TypedName())
			}
			p.picker = picker
		}
	}
	return nil
}

// Validate checks that the profile can run a dispatch cycle.
func (p *Profile) Validate() error {
	if p.picker == nil {
		return errors.New("profile has no picker plugin")
	}
	return nil
}

// SelectCar runs one dispatch cycle over the fleet snapshot.
func (p *Profile) SelectCar(ctx context.Context, fleet []types.CarSnapshot, request types.Request) (types.CarID, bool) {
	logger := log.FromContext(ctx)
	if p.picker == nil {
		logger.Error(p.Validate(), "Cannot dispatch", "request", request.String())
		return 0, false
	}

	cars := p.runFilterPlugins(ctx, request, fleet)
	if len(cars) == 0 {
		logger.V(logging.DEBUG).Info("No suitable car", "request", request.String())
		return 0, false
	}
	// if we got here, there is at least one car to score
	scored := p.runScorerPlugins(ctx, request, cars)

	return p.runPickerPlugin(ctx, scored)
}

func (p *Profile) runFilterPlugins(ctx context.Context, request types.Request, cars []types.CarSnapshot) []types.CarSnapshot {
	loggerDebug := log.FromContext(ctx).V(logging.DEBUG)
	filtered := cars
	loggerDebug.Info("Before running filter plugins", "cars", filtered)

	for _, filter := range p.filters {
		loggerDebug.Info("Running filter plugin", "plugin", filter.TypedName())
		before := p.clock.Now()
		filtered = filter.Filter(ctx, request, filtered)
		metrics.RecordPluginProcessingLatency(FilterExtensionPoint, filter.TypedName().Type, filter.TypedName().Name, p.clock.Since(before))
		loggerDebug.Info("Filter plugin result", "plugin", filter.TypedName(), "cars", filtered)
		if len(filtered) == 0 {
			break
		}
	}
	loggerDebug.Info("After running filter plugins")

	return filtered
}

// runScorerPlugins returns the candidates in input order with their accumulated weighted score.
func (p *Profile) runScorerPlugins(ctx context.Context, request types.Request, cars []types.CarSnapshot) []ScoredCar {
	loggerDebug := log.FromContext(ctx).V(logging.DEBUG)
	loggerDebug.Info("Before running scorer plugins", "cars", cars)

	weighted := make(map[types.CarID]float64, len(cars))
	for _, car := range cars {
		weighted[car.ID] = float64(0) // initialize weighted score per car with 0 value
	}
	for _, scorer := range p.scorers {
		loggerDebug.Info("Running scorer", "scorer", scorer.TypedName())
		before := p.clock.Now()
		scores := scorer.Score(ctx, request, cars)
		metrics.RecordPluginProcessingLatency(ScorerExtensionPoint, scorer.TypedName().Type, scorer.TypedName().Name, p.clock.Since(before))
		for id, score := range scores {
			if _, ok := weighted[id]; !ok {
				continue // scorers may only score candidates
			}
			weighted[id] += scorer.Contribution(score)
		}
		loggerDebug.Info("After running scorer", "scorer", scorer.TypedName())
	}

	scored := make([]ScoredCar, len(cars))
	for i, car := range cars {
		scored[i] = ScoredCar{CarSnapshot: car, Score: weighted[car.ID]}
	}
	loggerDebug.Info("After running scorer plugins", "scored", scored)
	return scored
}

func (p *Profile) runPickerPlugin(ctx context.Context, scored []ScoredCar) (types.CarID, bool) {
	loggerDebug := log.FromContext(ctx).V(logging.DEBUG)
	loggerDebug.Info("Before running picker plugin", "cars weighted score", fmt.Sprint(scored))
	before := p.clock.Now()
	id, ok := p.picker.Pick(ctx, scored)
	metrics.RecordPluginProcessingLatency(PickerExtensionPoint, p.picker.TypedName().Type, p.picker.TypedName().Name, p.clock.Since(before))
	loggerDebug.Info("After running picker plugin", "car", id, "picked", ok)

	return id, ok
}
