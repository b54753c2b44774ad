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
	IdleCarFilterType = "idle-car-filter"
)

var _ framework.Filter = &IdleCarFilter{}

func IdleCarFilterFactory(name string, _ json.RawMessage) (plugins.Plugin, error) {
	return NewIdleCarFilter().WithName(name), nil
}

func NewIdleCarFilter() *IdleCarFilter {
	return &IdleCarFilter{
		typedName: plugins.TypedName{Type: IdleCarFilterType, Name: IdleCarFilterType},
	}
}

// IdleCarFilter keeps only idle cars.
type IdleCarFilter struct {
	typedName plugins.TypedName
}

func (f *IdleCarFilter) TypedName() plugins.TypedName {
	return f.typedName
}

func (f *IdleCarFilter) WithName(name string) *IdleCarFilter {
	f.typedName.Name = name
	return f
}

func (f *IdleCarFilter) Filter(_ context.Context, _ types.Request, cars []types.CarSnapshot) []types.CarSnapshot {
	return filterCars(cars, func(car types.CarSnapshot) bool { return car.Motion == types.Idle })
}
