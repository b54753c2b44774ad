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

package controller

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/util/env"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

const (
	// defaultTickInterval is the default time a car needs to travel one floor.
	defaultTickInterval = 1 * time.Second
	// defaultGroundFloor is the floor every car starts on.
	defaultGroundFloor = 1
	// defaultHallCallTTL is how long an unserved hall call assignment is remembered.
	defaultHallCallTTL = 5 * time.Minute

	groundFloorEnvVar = "ELEVATOR_GROUND_FLOOR"
	hallCallTTLEnvVar = "ELEVATOR_HALL_CALL_TTL"
)

// Config holds the configuration for the Controller.
type Config struct {
	// FleetSize is the number of cars. Cars get ids 0 to FleetSize-1.
	// Required: must be positive.
	FleetSize int

	// TickInterval is the period of each car's worker loop. One tick moves a car at most one floor.
	// Optional: Defaults to `defaultTickInterval` (1 second).
	TickInterval time.Duration

	// GroundFloor is the floor cars start on.
	// Optional: Defaults to `defaultGroundFloor` (1).
	GroundFloor int

	// HallCallTTL bounds how long a hall call assignment stays pending if its car never stops at the floor.
	// Optional: Defaults to `defaultHallCallTTL` (5 minutes).
	HallCallTTL time.Duration
}

// ConfigOption is a functional option for configuring the Controller.
type ConfigOption func(*Config)

// NewConfig creates a new Config with the given options, applying defaults and validation.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		TickInterval: defaultTickInterval,
		GroundFloor:  defaultGroundFloor,
		HallCallTTL:  defaultHallCallTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: err.Error()}
	}
	return c, nil
}

// LoadConfigFromEnv creates a Config whose ground floor and hall call TTL defaults are taken from the environment.
// The given options are applied on top.
func LoadConfigFromEnv(logger logr.Logger, opts ...ConfigOption) (*Config, error) {
	fromEnv := []ConfigOption{
		WithGroundFloor(env.GetEnvInt(groundFloorEnvVar, defaultGroundFloor, logger)),
		WithHallCallTTL(env.GetEnvDuration(hallCallTTLEnvVar, defaultHallCallTTL, logger)),
	}
	return NewConfig(append(fromEnv, opts...)...)
}

// WithFleetSize sets the number of cars.
func WithFleetSize(n int) ConfigOption {
	return func(c *Config) {
		c.FleetSize = n
	}
}

// WithTickInterval sets the worker tick interval.
func WithTickInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.TickInterval = d
	}
}

// WithGroundFloor sets the starting floor of every car.
func WithGroundFloor(floor int) ConfigOption {
	return func(c *Config) {
		c.GroundFloor = floor
	}
}

// WithHallCallTTL sets the hall call assignment TTL.
func WithHallCallTTL(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.HallCallTTL = d
	}
}

// validate checks the configuration for validity.
func (c *Config) validate() error {
	if c.FleetSize <= 0 {
		return fmt.Errorf("FleetSize must be positive, but got %d", c.FleetSize)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TickInterval must be positive, but got %v", c.TickInterval)
	}
	if c.HallCallTTL <= 0 {
		return fmt.Errorf("HallCallTTL must be positive, but got %v", c.HallCallTTL)
	}
	return nil
}
