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

package cli

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/tombee/chord/pkg/errors"
)

// Exit codes of chord commands
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitInvalidFlow = 2
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// HandleExitError prints err and exits with its code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	code := ExitFailed
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
		if exitErr.Message == "" && exitErr.Cause == nil {
			os.Exit(code)
		}
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)
	os.Exit(code)
}

// printSuggestion prints the suggestion of the first user visible error in
// the chain.
func printSuggestion(err error) {
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok && userErr.IsUserVisible() {
			if s := userErr.UserSuggestion(); s != "" {
				fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", s)
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
