// Package utility provides the small built-in actions: echo, sleep, crypto,
// url and uuid. None of them hold resources, so a single stateless Action
// value serves every step.
package utility

import (
	"context"

	"github.com/tombee/chord/pkg/action"
)

// Kinds registered by Register.
const (
	KindEcho   = "echo"
	KindSleep  = "sleep"
	KindCrypto = "crypto"
	KindURL    = "url"
	KindUUID   = "uuid"
)

// Register adds the utility actions to reg.
func Register(reg *action.Registry) {
	reg.MustRegister(KindEcho, stateless(action.Func(echo)))
	reg.MustRegister(KindSleep, stateless(action.Func(sleep)))
	reg.MustRegister(KindCrypto, stateless(action.Func(digest)))
	reg.MustRegister(KindURL, stateless(action.Func(urlCodec)))
	reg.MustRegister(KindUUID, stateless(action.Func(newID)))
}

func stateless(a action.Action) action.Factory {
	return action.FactoryFunc(func(context.Context, action.CreateArg) (action.Action, error) {
		return a, nil
	})
}

// echo returns the step config rendered against the case.
func echo(_ context.Context, arg action.RunArg) (interface{}, error) {
	return arg.RenderValue(arg.Config())
}
