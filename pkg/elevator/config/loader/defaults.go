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
	"k8s.io/utils/ptr"

	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/plugins/picker"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/plugins"
)

const (
	// DefaultScorerWeight is the weight used for scorers referenced in the
	// configuration without explicit weights.
	DefaultScorerWeight = 1
)

// setDefaultsPhaseOne runs before the plugins are instantiated. It names unnamed plugins after their type.
func setDefaultsPhaseOne(cfg *DispatchConfig) {
	for idx, pluginConfig := range cfg.Plugins {
		if pluginConfig.Name == "" {
			cfg.Plugins[idx].Name = pluginConfig.Type
		}
	}
}

// setDefaultsPhaseTwo runs once the plugins exist. In particular it:
//  1. Fills an empty profile with every declared plugin, in declaration order.
//  2. Sets the default weight for scorers without one.
//  3. Adds a LowestIDPicker when no picker is referenced.
func setDefaultsPhaseTwo(cfg *DispatchConfig, instances map[string]plugins.Plugin) {
	if len(cfg.Profile.Plugins) == 0 {
		for _, spec := range cfg.Plugins {
			cfg.Profile.Plugins = append(cfg.Profile.Plugins, ProfilePlugin{PluginRef: spec.Name})
		}
	}

	pickerFound := false
	for idx, ref := range cfg.Profile.Plugins {
		switch instances[ref.PluginRef].(type) {
		case framework.Scorer:
			if ref.Weight == nil {
				cfg.Profile.Plugins[idx].Weight = ptr.To(DefaultScorerWeight)
			}
		case framework.Picker:
			pickerFound = true
		}
	}

	if !pickerFound {
		if _, taken := instances[picker.LowestIDPickerType]; !taken {
			instances[picker.LowestIDPickerType] = picker.NewLowestIDPicker()
			cfg.Plugins = append(cfg.Plugins, PluginSpec{Name: picker.LowestIDPickerType, Type: picker.LowestIDPickerType})
		}
		cfg.Profile.Plugins = append(cfg.Profile.Plugins, ProfilePlugin{PluginRef: picker.LowestIDPickerType})
	}
}
