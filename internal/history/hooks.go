package history

import (
	"context"
	"time"
)

type queryTimingKey struct{}

// queryHooks satisfies sqlhooks.Hooks, logging every query this store
// issues and how long it took — grounded on the teacher's
// internal/repository.Hooks.
type queryHooks struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	logger.Debugf("query %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		logger.Debugf("took %s", time.Since(begin))
	}
	return ctx, nil
}
