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

package plugins

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
)

// FactoryFunc instantiates a plugin of one type from its configured name and raw parameters.
type FactoryFunc func(name string, parameters json.RawMessage) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]FactoryFunc{}
)

// Register adds a factory for the given plugin type. Registering the same type again replaces the factory.
func Register(pluginType string, factory FactoryFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[pluginType] = factory
}

// Factory returns the factory registered for pluginType.
func Factory(pluginType string) (FactoryFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[pluginType]
	return f, ok
}

// RegisteredTypes returns the sorted list of registered plugin types.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// Instantiate builds a plugin through the factory registered for pluginType.
func Instantiate(pluginType, name string, parameters json.RawMessage) (Plugin, error) {
	factory, ok := Factory(pluginType)
	if !ok {
		return nil, fmt.Errorf("plugin type '%s' is not found in registry", pluginType)
	}
	plugin, err := factory(name, parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate the plugin type '%s' - %w", pluginType, err)
	}
	return plugin, nil
}

// PluginByType asserts that p implements P. name is only used in the error message.
func PluginByType[P Plugin](p Plugin, name string) (P, error) {
	var zero P
	if p == nil {
		return zero, fmt.Errorf("there is no plugin with the name '%s' defined", name)
	}
	typed, ok := p.(P)
	if !ok {
		return zero, fmt.Errorf("the plugin with the name '%s' is not an instance of %s", name, reflect.TypeFor[P]())
	}
	return typed, nil
}
