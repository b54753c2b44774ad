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

// Package server exposes a dispatcher over HTTP with JSON bodies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/profiling"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/controller"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

const (
	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-Id"

	maxBodyBytes = 1 << 20
)

// Dispatcher is the part of the controller the HTTP surface needs.
type Dispatcher interface {
	RequestHallCall(ctx context.Context, floor int, dir types.Direction) (types.CarID, error)
	SelectFloor(ctx context.Context, id types.CarID, floor int) error
	Cars() []types.CarSnapshot
	Car(id types.CarID) (types.CarSnapshot, error)
	PendingHallCalls() []controller.HallCallAssignment
}

// Options configures the handler returned by NewHandler.
type Options struct {
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// EnablePprof mounts the runtime profiles under /debug/pprof/.
	EnablePprof bool
}

type server struct {
	dispatcher Dispatcher
	logger     logr.Logger
}

// NewHandler builds the HTTP routes for d.
func NewHandler(d Dispatcher, logger logr.Logger, opts Options) http.Handler {
	s := &server{dispatcher: d, logger: logger.WithName("http")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/hall-calls", s.requestHallCall)
	mux.HandleFunc("GET /v1/hall-calls", s.listHallCalls)
	mux.HandleFunc("GET /v1/cars", s.listCars)
	mux.HandleFunc("GET /v1/cars/{id}", s.getCar)
	mux.HandleFunc("POST /v1/cars/{id}/destinations", s.selectFloor)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.EnablePprof {
		profiling.SetupPprofHandlers(mux)
	}
	return s.withRequestLogger(mux)
}

// withRequestLogger tags each request with an id and puts a logger carrying it into the request context.
func (s *server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := s.logger.WithValues("requestID", id, "method", r.Method, "path", r.URL.Path)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(log.IntoContext(r.Context(), logger)))
		logger.V(logging.DEBUG).Info("Request served", "duration", time.Since(start))
	})
}

type hallCallRequest struct {
	Floor     *int   `json:"floor"`
	Direction string `json:"direction"`
}

type hallCallResponse struct {
	Car int `json:"car"`
}

type destinationRequest struct {
	Floor *int `json:"floor"`
}

type carView struct {
	ID        int    `json:"id"`
	Floor     int    `json:"floor"`
	Motion    string `json:"motion"`
	UpStops   []int  `json:"upStops"`
	DownStops []int  `json:"downStops"`
}

type hallCallView struct {
	ID         string    `json:"id"`
	Floor      int       `json:"floor"`
	Direction  string    `json:"direction"`
	Car        int       `json:"car"`
	AssignedAt time.Time `json:"assignedAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *server) requestHallCall(w http.ResponseWriter, r *http.Request) {
	var body hallCallRequest
	if err := decode(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if body.Floor == nil {
		writeError(r.Context(), w, errutil.Error{Code: errutil.BadRequest, Msg: "floor is required"})
		return
	}
	dir, err := types.ParseDirection(body.Direction)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	id, err := s.dispatcher.RequestHallCall(r.Context(), *body.Floor, dir)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, hallCallResponse{Car: int(id)})
}

func (s *server) selectFloor(w http.ResponseWriter, r *http.Request) {
	id, err := carIDFromPath(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var body destinationRequest
	if err := decode(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if body.Floor == nil {
		writeError(r.Context(), w, errutil.Error{Code: errutil.BadRequest, Msg: "floor is required"})
		return
	}

	if err := s.dispatcher.SelectFloor(r.Context(), id, *body.Floor); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) listCars(w http.ResponseWriter, r *http.Request) {
	snapshots := s.dispatcher.Cars()
	out := make([]carView, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, toCarView(snap))
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

func (s *server) getCar(w http.ResponseWriter, r *http.Request) {
	id, err := carIDFromPath(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	snap, err := s.dispatcher.Car(id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCarView(snap))
}

func (s *server) listHallCalls(w http.ResponseWriter, r *http.Request) {
	pending := s.dispatcher.PendingHallCalls()
	out := make([]hallCallView, 0, len(pending))
	for _, a := range pending {
		out = append(out, hallCallView{
			ID:         a.ID,
			Floor:      a.Floor,
			Direction:  a.Direction.String(),
			Car:        int(a.Car),
			AssignedAt: a.AssignedAt,
		})
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

func toCarView(snap types.CarSnapshot) carView {
	v := carView{
		ID:        int(snap.ID),
		Floor:     snap.Floor,
		Motion:    snap.Motion.String(),
		UpStops:   snap.UpStops,
		DownStops: snap.DownStops,
	}
	if v.UpStops == nil {
		v.UpStops = []int{}
	}
	if v.DownStops == nil {
		v.DownStops = []int{}
	}
	return v
}

func carIDFromPath(r *http.Request) (types.CarID, error) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("car id %q is not an integer", raw)}
	}
	return types.CarID(id), nil
}

func decode(w http.ResponseWriter, r *http.Request, into any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("invalid request body - %v", err)}
	}
	return nil
}

// statusFor maps an error code to the HTTP status returned to clients.
func statusFor(code string) int {
	switch code {
	case errutil.BadRequest:
		return http.StatusBadRequest
	case errutil.UnknownCar:
		return http.StatusNotFound
	case errutil.NoCapacity:
		return http.StatusConflict
	case errutil.ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := errutil.CanonicalCode(err)
	status := statusFor(code)
	msg := err.Error()
	var e errutil.Error
	if errors.As(err, &e) {
		msg = e.Msg
	}

	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error(err, "Request failed")
	} else {
		logger.V(logging.VERBOSE).Info("Request rejected", "code", code, "reason", msg)
	}
	writeJSON(ctx, w, status, errorResponse{Code: code, Message: msg})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(ctx).V(logging.DEFAULT).Error(err, "Failed to write response")
	}
}
