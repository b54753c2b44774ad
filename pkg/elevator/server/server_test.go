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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/controller"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

type fakeDispatcher struct {
	hallErr   error
	hallCar   types.CarID
	selectErr error
	cars      []types.CarSnapshot
	pending   []controller.HallCallAssignment

	gotFloor int
	gotDir   types.Direction
	gotCar   types.CarID
}

func (f *fakeDispatcher) RequestHallCall(_ context.Context, floor int, dir types.Direction) (types.CarID, error) {
	f.gotFloor, f.gotDir = floor, dir
	return f.hallCar, f.hallErr
}

func (f *fakeDispatcher) SelectFloor(_ context.Context, id types.CarID, floor int) error {
	f.gotCar, f.gotFloor = id, floor
	return f.selectErr
}

func (f *fakeDispatcher) Cars() []types.CarSnapshot {
	return f.cars
}

func (f *fakeDispatcher) Car(id types.CarID) (types.CarSnapshot, error) {
	if int(id) < 0 || int(id) >= len(f.cars) {
		return types.CarSnapshot{}, errutil.Error{Code: errutil.UnknownCar, Msg: "no such car"}
	}
	return f.cars[id], nil
}

func (f *fakeDispatcher) PendingHallCalls() []controller.HallCallAssignment {
	return f.pending
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestRequestHallCall(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		hallErr    error
		wantStatus int
		wantCode   string
		wantFloor  int
		wantDir    types.Direction
	}{
		{
			name:       "assigned",
			body:       `{"floor": 7, "direction": "down"}`,
			wantStatus: http.StatusOK,
			wantFloor:  7,
			wantDir:    types.Down,
		},
		{
			name:       "direction is case insensitive",
			body:       `{"floor": 2, "direction": "UP"}`,
			wantStatus: http.StatusOK,
			wantFloor:  2,
			wantDir:    types.Up,
		},
		{
			name:       "missing direction",
			body:       `{"floor": 2}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "missing floor",
			body:       `{"direction": "up"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"floor": 2, "direction": "up", "speed": 3}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"floor":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "no capacity",
			body:       `{"floor": 3, "direction": "up"}`,
			hallErr:    errutil.Error{Code: errutil.NoCapacity, Msg: "no suitable car"},
			wantStatus: http.StatusConflict,
			wantCode:   errutil.NoCapacity,
			wantFloor:  3,
			wantDir:    types.Up,
		},
		{
			name:       "shut down",
			body:       `{"floor": 3, "direction": "up"}`,
			hallErr:    errutil.Error{Code: errutil.ServiceUnavailable, Msg: "controller is shut down"},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   errutil.ServiceUnavailable,
			wantFloor:  3,
			wantDir:    types.Up,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := &fakeDispatcher{hallCar: 2, hallErr: test.hallErr}
			h := NewHandler(d, logging.NewTestLogger(), Options{})

			rec := do(t, h, http.MethodPost, "/v1/hall-calls", test.body)
			require.Equal(t, test.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, test.wantFloor, d.gotFloor)
			assert.Equal(t, test.wantDir, d.gotDir)

			if test.wantCode != "" {
				assert.Equal(t, test.wantCode, decodeError(t, rec).Code)
				return
			}
			var got hallCallResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, 2, got.Car)
		})
	}
}

func TestSelectFloor(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		selectErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "accepted",
			path:       "/v1/cars/1/destinations",
			body:       `{"floor": 9}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "unknown car",
			path:       "/v1/cars/8/destinations",
			body:       `{"floor": 9}`,
			selectErr:  errutil.Error{Code: errutil.UnknownCar, Msg: "car 8 does not exist"},
			wantStatus: http.StatusNotFound,
			wantCode:   errutil.UnknownCar,
		},
		{
			name:       "non numeric id",
			path:       "/v1/cars/first/destinations",
			body:       `{"floor": 9}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "missing floor",
			path:       "/v1/cars/1/destinations",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errutil.BadRequest,
		},
		{
			name:       "unexpected error",
			path:       "/v1/cars/1/destinations",
			body:       `{"floor": 9}`,
			selectErr:  errutil.Error{Code: errutil.Internal, Msg: "boom"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   errutil.Internal,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := &fakeDispatcher{selectErr: test.selectErr}
			h := NewHandler(d, logging.NewTestLogger(), Options{})

			rec := do(t, h, http.MethodPost, test.path, test.body)
			require.Equal(t, test.wantStatus, rec.Code, rec.Body.String())
			if test.wantCode != "" {
				assert.Equal(t, test.wantCode, decodeError(t, rec).Code)
				return
			}
			assert.Equal(t, types.CarID(1), d.gotCar)
			assert.Equal(t, 9, d.gotFloor)
		})
	}
}

func TestListCars(t *testing.T) {
	d := &fakeDispatcher{cars: []types.CarSnapshot{
		{ID: 0, Floor: 1, Motion: types.Idle},
		{ID: 1, Floor: 4, Motion: types.MovingUp, UpStops: []int{6, 8}, DownStops: []int{2}},
	}}
	h := NewHandler(d, logging.NewTestLogger(), Options{})

	rec := do(t, h, http.MethodGet, "/v1/cars", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []carView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want := []carView{
		{ID: 0, Floor: 1, Motion: "Idle", UpStops: []int{}, DownStops: []int{}},
		{ID: 1, Floor: 4, Motion: "MovingUp", UpStops: []int{6, 8}, DownStops: []int{2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected cars (-want +got): %s", diff)
	}

	rec = do(t, h, http.MethodGet, "/v1/cars/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one carView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, want[1], one)

	rec = do(t, h, http.MethodGet, "/v1/cars/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListHallCalls(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &fakeDispatcher{pending: []controller.HallCallAssignment{
		{ID: "a", Floor: 3, Direction: types.Up, Car: 1, AssignedAt: at},
	}}
	h := NewHandler(d, logging.NewTestLogger(), Options{})

	rec := do(t, h, http.MethodGet, "/v1/hall-calls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []hallCallView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want := []hallCallView{{ID: "a", Floor: 3, Direction: "Up", Car: 1, AssignedAt: at}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected hall calls (-want +got): %s", diff)
	}
}

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_requests_total", Help: "Test counter."})
	reg.MustRegister(counter)
	counter.Inc()

	withExtras := NewHandler(&fakeDispatcher{}, logging.NewTestLogger(), Options{Gatherer: reg, EnablePprof: true})
	bare := NewHandler(&fakeDispatcher{}, logging.NewTestLogger(), Options{})

	rec := do(t, withExtras, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, withExtras, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_requests_total 1")

	rec = do(t, withExtras, http.MethodGet, "/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/debug/pprof/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, bare, http.MethodGet, "/v1/cars/0/destinations", "").Code)
}

func TestRequestID(t *testing.T) {
	h := NewHandler(&fakeDispatcher{}, logging.NewTestLogger(), Options{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHandler_WithController(t *testing.T) {
	cfg, err := controller.NewConfig(controller.WithFleetSize(2), controller.WithTickInterval(time.Millisecond))
	require.NoError(t, err)
	c, err := controller.NewController(*cfg, logging.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Shutdown)

	srv := httptest.NewServer(NewHandler(c, logging.NewTestLogger(), Options{}))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/hall-calls", "application/json", strings.NewReader(`{"floor": 4, "direction": "up"}`))
	require.NoError(t, err)
	var assigned hallCallResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&assigned))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, assigned.Car)

	require.Eventually(t, func() bool {
		snap, err := c.Car(0)
		return err == nil && snap.Floor == 4 && snap.Motion == types.Idle
	}, 5*time.Second, 5*time.Millisecond)

	c.Shutdown()
	resp, err = http.Post(srv.URL+"/v1/cars/0/destinations", "application/json", strings.NewReader(`{"floor": 1}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
