package activitymap

import (
	"context"
	"errors"

	auth "github.com/vaultx/vaultx-auth"
)

// LogSink writes every event to logger as an "activity" line
func LogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		if logger == nil {
			return nil
		}
		logger.Info("activity", Normalize(event, opts...).Fields()...)
		return nil
	})
}

// Fanout records each event into every sink. All sinks run even when one
// fails; the failures are joined.
func Fanout(sinks ...auth.ActivitySink) auth.ActivitySink {
	active := make([]auth.ActivitySink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}

	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		var errs []error
		for _, s := range active {
			if err := s.Record(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
