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

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/metrics"
)

const (
	ElevatorComponent = "elevator"

	// Hall call outcomes.
	HallCallAssigned   = "assigned"
	HallCallNoCapacity = "no_capacity"
	HallCallRejected   = "rejected"

	// Cabin call results.
	CabinCallAccepted   = "accepted"
	CabinCallUnknownCar = "unknown_car"
	CabinCallRejected   = "rejected"
)

var (
	// Car metrics
	carFloor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: ElevatorComponent,
			Name:      "car_floor",
			Help:      metricsutil.HelpMsgWithStability("Current floor of each car.", compbasemetrics.ALPHA),
		},
		[]string{"car"},
	)

	carMotion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: ElevatorComponent,
			Name:      "car_motion_state",
			Help:      metricsutil.HelpMsgWithStability("Motion state of each car: 0 idle, 1 moving up, 2 moving down.", compbasemetrics.ALPHA),
		},
		[]string{"car"},
	)

	carStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ElevatorComponent,
			Name:      "car_stops_total",
			Help:      metricsutil.HelpMsgWithStability("Number of stops served by each car.", compbasemetrics.ALPHA),
		},
		[]string{"car"},
	)

	// Request metrics
	hallCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ElevatorComponent,
			Name:      "hall_call_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of hall calls broken out by direction and outcome.", compbasemetrics.ALPHA),
		},
		[]string{"direction", "outcome"},
	)

	cabinCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ElevatorComponent,
			Name:      "cabin_call_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of cabin calls broken out by result.", compbasemetrics.ALPHA),
		},
		[]string{"result"},
	)

	// Dispatch metrics
	dispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: ElevatorComponent,
			Name:      "dispatch_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Time spent selecting a car for a hall call.", compbasemetrics.ALPHA),
			Buckets: []float64{
				0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
			},
		},
	)

	pluginProcessingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: ElevatorComponent,
			Name:      "dispatch_plugin_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Dispatch plugin processing latency distribution in seconds for each extension point, plugin type and plugin name.", compbasemetrics.ALPHA),
			Buckets: []float64{
				0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1,
			},
		},
		[]string{"extension_point", "plugin_type", "plugin_name"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(carFloor)
		metrics.Registry.MustRegister(carMotion)
		metrics.Registry.MustRegister(carStops)
		metrics.Registry.MustRegister(hallCalls)
		metrics.Registry.MustRegister(cabinCalls)
		metrics.Registry.MustRegister(dispatchLatency)
		metrics.Registry.MustRegister(pluginProcessingLatency)
	})
}

// Reset clears every metric. Only for use in tests.
func Reset() {
	carFloor.Reset()
	carMotion.Reset()
	carStops.Reset()
	hallCalls.Reset()
	cabinCalls.Reset()
	pluginProcessingLatency.Reset()
}

// RecordCarFloor sets the current floor of a car.
func RecordCarFloor(car int, floor int) {
	carFloor.WithLabelValues(strconv.Itoa(car)).Set(float64(floor))
}

// RecordCarMotion sets the motion state of a car.
func RecordCarMotion(car int, motion int) {
	carMotion.WithLabelValues(strconv.Itoa(car)).Set(float64(motion))
}

// RecordCarStop counts a stop served by a car.
func RecordCarStop(car int) {
	carStops.WithLabelValues(strconv.Itoa(car)).Inc()
}

// RecordHallCall counts a hall call with its outcome.
func RecordHallCall(direction, outcome string) {
	hallCalls.WithLabelValues(direction, outcome).Inc()
}

// RecordCabinCall counts a cabin call with its result.
func RecordCabinCall(result string) {
	cabinCalls.WithLabelValues(result).Inc()
}

// RecordDispatchLatency records the time a dispatch decision took.
func RecordDispatchLatency(duration time.Duration) {
	dispatchLatency.Observe(duration.Seconds())
}

// RecordPluginProcessingLatency records the processing latency for a dispatch plugin.
func RecordPluginProcessingLatency(extensionPoint, pluginType, pluginName string, duration time.Duration) {
	pluginProcessingLatency.WithLabelValues(extensionPoint, pluginType, pluginName).Observe(duration.Seconds())
}
