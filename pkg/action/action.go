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

// Package action defines the contract between the engine and pluggable
// actions.
//
// A Factory is looked up by the step's action kind and builds one Action
// per step when a stage starts. The Action then runs once per case. Neither
// side sees scheduling internals: a factory gets a CreateArg bound to the
// task-level template context, an action gets a RunArg bound to the case.
package action

import (
	"context"
	"regexp"

	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/render"
)

// Action is one unit of work run by a step.
type Action interface {
	Run(ctx context.Context, arg RunArg) (interface{}, error)
}

// Factory builds the Action of a step.
type Factory interface {
	Create(ctx context.Context, arg CreateArg) (Action, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, arg CreateArg) (Action, error)

// Create implements Factory.
func (f FactoryFunc) Create(ctx context.Context, arg CreateArg) (Action, error) {
	return f(ctx, arg)
}

// Func adapts a function to Action.
type Func func(ctx context.Context, arg RunArg) (interface{}, error)

// Run implements Action.
func (f Func) Run(ctx context.Context, arg RunArg) (interface{}, error) {
	return f(ctx, arg)
}

// CreateArg is what a factory sees when a stage builds its steps. Rendering
// is bound to the task context: def and pre are available, case and step
// are not.
type CreateArg interface {
	ID() ident.Step
	Kind() string

	// Config is the step's raw, unrendered configuration
	Config() interface{}

	RenderString(text string) (string, error)
	RenderValue(value interface{}) (interface{}, error)

	// IsTaskShared reports whether text renders to the same value for every
	// case of the task
	IsTaskShared(text string) bool
}

// RunArg is what an action sees for one case.
type RunArg interface {
	ID() ident.Step
	Config() interface{}

	RenderString(text string) (string, error)
	RenderValue(value interface{}) (interface{}, error)

	// Context is the case-scoped template namespace
	Context() *render.Context
}

// A per-case namespace only counts at the head of a path, so pre.step.x
// stays task scoped.
var perCasePattern = regexp.MustCompile(`\{\{(?:[^}]*?[^\w.$])?\.?(case|step|curr|dyn)\.`)

// IsTaskShared reports whether a templated string is free of per-case
// references (case., step., curr., dyn.). Factories use it to decide whether
// a resource such as a client can be built once and shared by every case.
func IsTaskShared(text string) bool {
	return !perCasePattern.MatchString(text)
}
