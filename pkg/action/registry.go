// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/chord/pkg/errors"
)

// Registry maps action kinds to factories.
// Programs embedding chord register their own kinds next to the builtins;
// there is no loading of native code at run time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds (or replaces) the factory of kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// MustRegister is Register that panics on an empty kind or nil factory.
func (r *Registry) MustRegister(kind string, f Factory) {
	if kind == "" || f == nil {
		panic(fmt.Sprintf("action: invalid registration for kind %q", kind))
	}
	r.Register(kind, f)
}

// Get returns the factory of kind. An unknown kind is a ConfigError.
func (r *Registry) Get(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[kind]
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "action",
			Reason: fmt.Sprintf("unknown action kind %q", kind),
			Cause: &errors.ValidationError{
				Field:      "action",
				Message:    fmt.Sprintf("action %q is not registered", kind),
				Suggestion: "run 'chord version --actions' to list the available kinds",
			},
		}
	}
	return f, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
