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

// Package telemetry defines the outbound notifications a car emits on every committed change, along with the
// logging and metrics sinks the dispatcher ships with.
//
// Notifications are delivered synchronously while the emitting car's lock is held. Observers must return quickly
// and must not call back into the car that notified them.
package telemetry

import (
	"github.com/go-logr/logr"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/metrics"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/types"
)

// Observer receives floor and direction changes of a car.
type Observer interface {
	OnFloorChanged(id types.CarID, floor int)
	OnDirectionChanged(id types.CarID, motion types.MotionState)
}

// StopObserver is optionally implemented by an Observer that also wants to know when a car served a stop.
// served is the direction of travel the stop served, or Unspecified when the car holds no further stop at floor.
type StopObserver interface {
	OnStopped(id types.CarID, floor int, served types.Direction)
}

// compile-time type validation
var (
	_ Observer     = &ObserverFuncs{}
	_ StopObserver = &ObserverFuncs{}
	_ Observer     = &LogObserver{}
	_ StopObserver = &LogObserver{}
	_ Observer     = &MetricsObserver{}
	_ StopObserver = &MetricsObserver{}
)

// ObserverFuncs adapts plain functions to Observer and StopObserver. Nil functions are skipped.
type ObserverFuncs struct {
	FloorChanged     func(id types.CarID, floor int)
	DirectionChanged func(id types.CarID, motion types.MotionState)
	Stopped          func(id types.CarID, floor int, served types.Direction)
}

func (o *ObserverFuncs) OnFloorChanged(id types.CarID, floor int) {
	if o.FloorChanged != nil {
		o.FloorChanged(id, floor)
	}
}

func (o *ObserverFuncs) OnDirectionChanged(id types.CarID, motion types.MotionState) {
	if o.DirectionChanged != nil {
		o.DirectionChanged(id, motion)
	}
}

func (o *ObserverFuncs) OnStopped(id types.CarID, floor int, served types.Direction) {
	if o.Stopped != nil {
		o.Stopped(id, floor, served)
	}
}

// NewLogObserver returns an observer that writes one log line per notification.
func NewLogObserver(logger logr.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithName("telemetry")}
}

// LogObserver logs every notification. Floor changes are logged at DEBUG, everything else at DEFAULT.
type LogObserver struct {
	logger logr.Logger
}

func (o *LogObserver) OnFloorChanged(id types.CarID, floor int) {
	o.logger.V(logging.DEBUG).Info("Car floor changed", "car", id, "floor", floor)
}

func (o *LogObserver) OnDirectionChanged(id types.CarID, motion types.MotionState) {
	o.logger.V(logging.DEFAULT).Info("Car direction changed", "car", id, "motion", motion.String())
}

func (o *LogObserver) OnStopped(id types.CarID, floor int, served types.Direction) {
	o.logger.V(logging.DEFAULT).Info("Car stopped", "car", id, "floor", floor, "served", served.String())
}

// NewMetricsObserver returns an observer that mirrors car state into the Prometheus collectors of the metrics
// package. metrics.Register must be called for the values to be exported.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// MetricsObserver records car floor, motion and stops as metrics.
type MetricsObserver struct{}

func (o *MetricsObserver) OnFloorChanged(id types.CarID, floor int) {
	metrics.RecordCarFloor(int(id), floor)
}

func (o *MetricsObserver) OnDirectionChanged(id types.CarID, motion types.MotionState) {
	metrics.RecordCarMotion(int(id), int(motion))
}

func (o *MetricsObserver) OnStopped(id types.CarID, _ int, _ types.Direction) {
	metrics.RecordCarStop(int(id))
}
