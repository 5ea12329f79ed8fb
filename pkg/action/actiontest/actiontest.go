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

// Package actiontest provides CreateArg and RunArg implementations for
// testing actions outside the engine.
package actiontest

import (
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/render"
)

// StepID is the identity every argument built here carries.
var StepID = ident.Step{
	Case: ident.Case{Task: ident.Task{ExecID: "test", Name: "task"}, Round: "stage_1", Row: "1"},
	Name: "step",
}

// Arg is both a CreateArg and a RunArg.
type Arg struct {
	kind   string
	config interface{}
	ctx    *render.Context
}

var (
	_ action.CreateArg = (*Arg)(nil)
	_ action.RunArg    = (*Arg)(nil)
)

// NewCreateArg binds config to a task-level context holding def.
func NewCreateArg(kind string, config interface{}, def map[string]interface{}) *Arg {
	return &Arg{kind: kind, config: config, ctx: render.NewContext(def, nil)}
}

// NewTaskArg is NewCreateArg with pre-stage values bound as pre.
func NewTaskArg(kind string, config interface{}, def, pre map[string]interface{}) *Arg {
	return &Arg{kind: kind, config: config, ctx: render.NewContext(def, pre)}
}

// NewRunArg binds config to a case context holding def and row.
func NewRunArg(config interface{}, def, row map[string]interface{}) *Arg {
	base := render.NewContext(def, nil)
	return &Arg{config: config, ctx: base.ForCase(row)}
}

func (a *Arg) ID() ident.Step             { return StepID }
func (a *Arg) Kind() string               { return a.kind }
func (a *Arg) Config() interface{}        { return a.config }
func (a *Arg) Context() *render.Context   { return a.ctx }
func (a *Arg) IsTaskShared(s string) bool { return action.IsTaskShared(s) }

func (a *Arg) RenderString(text string) (string, error) {
	return a.ctx.RenderString(text)
}

func (a *Arg) RenderValue(value interface{}) (interface{}, error) {
	return a.ctx.RenderValue(value)
}
