package engine

import (
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/render"
)

// createArg binds a step definition to the task-level context.
type createArg struct {
	id   ident.Step
	step *flow.Step
	base *render.Context
}

var _ action.CreateArg = (*createArg)(nil)

func (a *createArg) ID() ident.Step      { return a.id }
func (a *createArg) Kind() string        { return a.step.Action }
func (a *createArg) Config() interface{} { return a.step.Config }

func (a *createArg) RenderString(text string) (string, error) {
	return a.base.RenderString(text)
}

func (a *createArg) RenderValue(value interface{}) (interface{}, error) {
	return a.base.RenderValue(value)
}

func (a *createArg) IsTaskShared(text string) bool {
	return action.IsTaskShared(text)
}

// runArg binds a step definition to one case's context.
type runArg struct {
	id   ident.Step
	step *flow.Step
	ctx  *render.Context
}

var _ action.RunArg = (*runArg)(nil)

func (a *runArg) ID() ident.Step           { return a.id }
func (a *runArg) Config() interface{}      { return a.step.Config }
func (a *runArg) Context() *render.Context { return a.ctx }

func (a *runArg) RenderString(text string) (string, error) {
	return a.ctx.RenderString(text)
}

func (a *runArg) RenderValue(value interface{}) (interface{}, error) {
	return a.ctx.RenderValue(value)
}
