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

package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// Reloadable is a strategy whose implementation can be swapped while the fleet is running. Each SelectCar call
// uses whichever strategy was current when it started.
type Reloadable struct {
	current atomic.Pointer[strategyHolder]
}

// strategyHolder wraps the interface value, atomic.Pointer needs a concrete type.
type strategyHolder struct {
	framework.Strategy
}

var _ framework.Strategy = &Reloadable{}

// NewReloadable starts out with initial.
func NewReloadable(initial framework.Strategy) *Reloadable {
	r := &Reloadable{}
	r.Store(initial)
	return r
}

// Store makes s the strategy used by subsequent calls. A nil s is ignored.
func (r *Reloadable) Store(s framework.Strategy) {
	if s == nil {
		return
	}
	r.current.Store(&strategyHolder{Strategy: s})
}

// Load returns the current strategy.
func (r *Reloadable) Load() framework.Strategy {
	return r.current.Load().Strategy
}

func (r *Reloadable) SelectCar(ctx context.Context, fleet []types.CarSnapshot, req types.Request) (types.CarID, bool) {
	return r.Load().SelectCar(ctx, fleet, req)
}
