package utility

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

// MaxSleepDuration is the maximum allowed sleep duration.
const MaxSleepDuration = 5 * time.Minute

// sleep pauses the case. Config "duration" is seconds (number or numeric
// string) or a Go duration string; "seconds" is accepted as an alias.
// The result is the slept duration in milliseconds.
func sleep(ctx context.Context, arg action.RunArg) (interface{}, error) {
	raw, err := renderedConfig(KindSleep, arg)
	if err != nil {
		return nil, err
	}
	cfg := action.Config(raw)

	key := "duration"
	if _, ok := cfg[key]; !ok {
		key = "seconds"
	}
	if _, ok := cfg[key]; !ok {
		return nil, missing(KindSleep, "duration")
	}

	sleepDuration, err := cfg.Duration(key, 0)
	if err != nil {
		return nil, invalid(KindSleep, "invalid %s: %v", key, err)
	}

	if sleepDuration <= 0 {
		return nil, invalid(KindSleep, "duration must be positive")
	}
	if sleepDuration > MaxSleepDuration {
		return nil, invalid(KindSleep, "duration %v exceeds maximum allowed (%v)", sleepDuration, MaxSleepDuration)
	}

	startTime := time.Now()
	timer := time.NewTimer(sleepDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, &errors.ActionError{
			Code:    CodeInterrupted,
			Message: fmt.Sprintf("sleep interrupted after %v of %v", time.Since(startTime).Round(time.Millisecond), sleepDuration),
			Cause:   ctx.Err(),
		}
	}

	return sleepDuration.Milliseconds(), nil
}
