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
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/filewatch"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch"
)

// WatchConfigFile rebuilds the dispatch profile whenever the file at path changes and stores it into target. A
// configuration that fails to load is logged and target keeps its current strategy. The watch ends with ctx.
func WatchConfigFile(ctx context.Context, path string, debounce time.Duration, target *dispatch.Reloadable) error {
	logger := log.FromContext(ctx).WithName("dispatch-config").WithValues("path", path)
	return filewatch.Watch(ctx, path, debounce, func() {
		profile, err := LoadConfigFile(path, logger)
		if err != nil {
			logger.Error(err, "Failed to reload dispatch configuration, keeping the current profile")
			return
		}
		target.Store(profile)
		logger.Info("Reloaded dispatch configuration")
	})
}
