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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

func hallCall(t *testing.T, floor int, dir types.Direction) types.Request {
	t.Helper()
	req, err := types.NewHallCall(floor, dir)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func ids(cars []types.CarSnapshot) []types.CarID {
	out := []types.CarID{}
	for _, c := range cars {
		out = append(out, c.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	fleet := []types.CarSnapshot{
		{ID: 0, Floor: 3, Motion: types.Idle},
		{ID: 1, Floor: 2, Motion: types.MovingUp},
		{ID: 2, Floor: 7, Motion: types.MovingUp},
		{ID: 3, Floor: 9, Motion: types.MovingDown},
		{ID: 4, Floor: 5, Motion: types.MovingDown},
		{ID: 5, Floor: 5, Motion: types.MovingUp},
	}

	tests := []struct {
		name   string
		filter framework.Filter
		req    types.Request
		want   []types.CarID
	}{
		{
			name:   "suitable for up call keeps idle and upward cars below the floor",
			filter: NewSuitableCarFilter(),
			req:    hallCall(t, 5, types.Up),
			want:   []types.CarID{0, 1, 5},
		},
		{
			name:   "suitable for down call keeps idle and downward cars above the floor",
			filter: NewSuitableCarFilter(),
			req:    hallCall(t, 5, types.Down),
			want:   []types.CarID{0, 3, 4},
		},
		{
			name:   "suitable with no match in direction",
			filter: NewSuitableCarFilter(),
			req:    hallCall(t, 10, types.Down),
			want:   []types.CarID{0},
		},
		{
			name:   "idle keeps idle cars only",
			filter: NewIdleCarFilter(),
			req:    hallCall(t, 5, types.Up),
			want:   []types.CarID{0},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.filter.Filter(context.Background(), test.req, fleet)
			if diff := cmp.Diff(test.want, ids(got)); diff != "" {
				t.Errorf("Unexpected output (-want +got): %v", diff)
			}
		})
	}
}

func TestSuitable_NoCars(t *testing.T) {
	got := NewSuitableCarFilter().Filter(context.Background(), hallCall(t, 1, types.Up), nil)
	if len(got) != 0 {
		t.Errorf("expected no cars, got %v", got)
	}
}

func TestFactories(t *testing.T) {
	p, err := SuitableCarFilterFactory("suitable", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("suitable/"+SuitableCarFilterType, p.TypedName().String()); diff != "" {
		t.Errorf("Unexpected typed name (-want +got): %v", diff)
	}
	p, err = IdleCarFilterFactory("idle", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("idle/"+IdleCarFilterType, p.TypedName().String()); diff != "" {
		t.Errorf("Unexpected typed name (-want +got): %v", diff)
	}
}
