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

// WeightedScorer is a Scorer together with the weight its scores carry when a Profile ranks cars.
//
// A car's total is the sum of Contribution over every scorer. With a distance scorer at weight 3 and a direction
// affinity scorer at weight 1, being close to the call counts three times as much as already heading its way. A
// weight of 0 keeps the scorer running and timed, but it can no longer change which car is picked.
type WeightedScorer struct {
	Scorer
	weight int
}

// NewWeightedScorer wraps scorer with weight.
func NewWeightedScorer(scorer Scorer, weight int) *WeightedScorer {
	return &WeightedScorer{Scorer: scorer, weight: weight}
}

// Weight is the multiplier applied to every score from the wrapped scorer.
func (s *WeightedScorer) Weight() int {
	return s.weight
}

// Contribution is what one raw score adds to a car's total. Scores outside [0, 1] are clamped first so a single
// misbehaving scorer cannot outweigh the others by more than its weight.
func (s *WeightedScorer) Contribution(score float64) float64 {
	return min(max(score, 0), 1) * float64(s.weight)
}
