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
	"encoding/json"
	"fmt"
	"strings"
)

// DispatchConfig is the on-disk description of a dispatch strategy, written in YAML or JSON.
//
//	plugins:
//	- name: suitable
//	  type: suitable-car-filter
//	- type: distance-scorer
//	profile:
//	  plugins:
//	  - pluginRef: suitable
//	  - pluginRef: distance-scorer
//	    weight: 2
type DispatchConfig struct {
	// Plugins declares the plugin instances used by the profile.
	Plugins []PluginSpec `json:"plugins"`
	// Profile lists the plugins the dispatch cycle runs, in order. When empty, every declared plugin is used.
	Profile Profile `json:"profile"`
}

func (c DispatchConfig) String() string {
	return fmt.Sprintf("{Plugins: %v, Profile: %v}", c.Plugins, c.Profile)
}

// PluginSpec declares one plugin instance.
type PluginSpec struct {
	// Name identifies the instance. Defaults to Type.
	Name string `json:"name,omitempty"`
	// Type selects the registered factory.
	Type string `json:"type"`
	// Parameters are passed verbatim to the factory.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (ps PluginSpec) String() string {
	var parameters string
	if ps.Parameters != nil {
		parameters = fmt.Sprintf(", Parameters: %s", ps.Parameters)
	}
	return fmt.Sprintf("{%s/%s%s}", ps.Name, ps.Type, parameters)
}

// Profile is the ordered list of plugin references of the dispatch cycle.
type Profile struct {
	Plugins []ProfilePlugin `json:"plugins"`
}

func (p Profile) String() string {
	refs := make([]string, 0, len(p.Plugins))
	for _, pp := range p.Plugins {
		refs = append(refs, pp.String())
	}
	return "[" + strings.Join(refs, ", ") + "]"
}

// ProfilePlugin references a declared plugin. Weight only applies to scorers.
type ProfilePlugin struct {
	PluginRef string `json:"pluginRef"`
	Weight    *int   `json:"weight,omitempty"`
}

func (pp ProfilePlugin) String() string {
	if pp.Weight == nil {
		return pp.PluginRef
	}
	return fmt.Sprintf("%s(weight %d)", pp.PluginRef, *pp.Weight)
}
