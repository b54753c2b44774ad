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

package runnable

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// Lifecycle is anything that runs in the background between Start and Shutdown.
type Lifecycle interface {
	Start(ctx context.Context) error
	Shutdown()
}

// Background turns a Lifecycle into a runnable that blocks until ctx is done and then shuts it down.
func Background(l Lifecycle) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		if err := l.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		l.Shutdown()
		return nil
	})
}
