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

package loader

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
	errutil "github.com/zetxqx/elevator-dispatch/pkg/elevator/util/error"
)

// LoadConfigFile reads a dispatch configuration from path and builds its profile.
func LoadConfigFile(path string, logger logr.Logger) (*framework.Profile, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: fmt.Sprintf("failed to read dispatch config %q - %v", path, err)}
	}
	return LoadConfig(configBytes, logger)
}

// Load config from supplied text that was converted to []byte
func LoadConfig(configBytes []byte, logger logr.Logger) (*framework.Profile, error) {
	profile, err := loadConfig(configBytes, logger)
	if err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: err.Error()}
	}
	return profile, nil
}

func loadConfig(configBytes []byte, logger logr.Logger) (*framework.Profile, error) {
	rawConfig, err := loadRawConfig(configBytes)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded dispatch configuration", "config", rawConfig)

	setDefaultsPhaseOne(rawConfig)

	instances, err := instantiatePlugins(rawConfig.Plugins)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugins - %w", err)
	}

	setDefaultsPhaseTwo(rawConfig, instances)

	logger.Info("Dispatch configuration with defaults set", "config", rawConfig)

	if err = validateProfile(rawConfig, instances); err != nil {
		return nil, fmt.Errorf("failed to validate the dispatch profile - %w", err)
	}

	return buildProfile(rawConfig.Profile, instances)
}

func loadRawConfig(configBytes []byte) (*DispatchConfig, error) {
	rawConfig := &DispatchConfig{}
	if err := yaml.UnmarshalStrict(configBytes, rawConfig); err != nil {
		return nil, fmt.Errorf("the configuration is invalid - %w", err)
	}
	return rawConfig, nil
}

func instantiatePlugins(configuredPlugins []PluginSpec) (map[string]plugins.Plugin, error) {
	instances := make(map[string]plugins.Plugin, len(configuredPlugins))
	pluginNames := sets.New[string]() // set of plugin names, a name must be unique

	for _, pluginConfig := range configuredPlugins {
		if pluginConfig.Type == "" {
			return nil, fmt.Errorf("plugin definition for '%s' is missing a type", pluginConfig.Name)
		}

		if pluginNames.Has(pluginConfig.Name) {
			return nil, fmt.Errorf("plugin name '%s' used more than once", pluginConfig.Name)
		}
		pluginNames.Insert(pluginConfig.Name)

		plugin, err := plugins.Instantiate(pluginConfig.Type, pluginConfig.Name, pluginConfig.Parameters)
		if err != nil {
			return nil, err
		}
		instances[pluginConfig.Name] = plugin
	}

	return instances, nil
}

// validateProfile reports every problem of the profile at once.
func validateProfile(cfg *DispatchConfig, instances map[string]plugins.Plugin) error {
	var errs error
	referenced := sets.New[string]()
	for _, ref := range cfg.Profile.Plugins {
		if ref.PluginRef == "" {
			errs = multierr.Append(errs, errors.New("profile plugins must have a plugin reference"))
			continue
		}
		if referenced.Has(ref.PluginRef) {
			errs = multierr.Append(errs, fmt.Errorf("plugin '%s' is referenced more than once in the profile", ref.PluginRef))
			continue
		}
		referenced.Insert(ref.PluginRef)

		plugin, ok := instances[ref.PluginRef]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("profile references an undefined plugin '%s'", ref.PluginRef))
			continue
		}
		switch plugin.(type) {
		case framework.Filter, framework.Scorer, framework.Picker:
		default:
			errs = multierr.Append(errs, fmt.Errorf("plugin '%s' is not a dispatch plugin", ref.PluginRef))
			continue
		}
		if ref.Weight != nil {
			if _, ok := plugin.(framework.Scorer); !ok {
				errs = multierr.Append(errs, fmt.Errorf("plugin '%s' has a weight but is not a scorer", ref.PluginRef))
			} else if *ref.Weight <= 0 {
				errs = multierr.Append(errs, fmt.Errorf("scorer '%s' must have a positive weight, got %d", ref.PluginRef, *ref.Weight))
			}
		}
	}
	return errs
}

func buildProfile(cfg Profile, instances map[string]plugins.Plugin) (*framework.Profile, error) {
	profile := framework.NewProfile()
	for _, ref := range cfg.Plugins {
		referencedPlugin := instances[ref.PluginRef]
		if scorer, ok := referencedPlugin.(framework.Scorer); ok {
			referencedPlugin = framework.NewWeightedScorer(scorer, *ref.Weight)
		}
		if err := profile.AddPlugins(referencedPlugin); err != nil {
			return nil, fmt.Errorf("failed to load dispatch profile - %w", err)
		}
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}
