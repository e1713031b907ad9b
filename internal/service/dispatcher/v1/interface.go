package dispatcher

import (
	"context"

	"github.com/danilovkiri/dk-go-settler/internal/models/modelqueue"
)

// Dispatcher defines a set of methods for types implementing Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry modelqueue.DispatchQueueEntry) error
}
