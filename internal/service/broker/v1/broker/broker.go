// Package broker drives the dispatch queue: approved withdrawals are pushed
// onto a channel by the settlement service and drained here by a worker pool.
// Dispatch therefore always runs outside any request context or DB
// transaction.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/danilovkiri/dk-go-settler/internal/models/modelqueue"
	dispatcher "github.com/danilovkiri/dk-go-settler/internal/service/dispatcher/v1"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Broker struct {
	ctx          context.Context
	log          *zerolog.Logger
	queue        chan modelqueue.DispatchQueueEntry
	wg           *sync.WaitGroup
	dispatcher   dispatcher.Dispatcher
	workerNumber int
}

type dispatchWorker struct {
	ID         int
	ctx        context.Context
	log        *zerolog.Logger
	queue      chan modelqueue.DispatchQueueEntry
	dispatcher dispatcher.Dispatcher
}

func InitBroker(ctx context.Context, queue chan modelqueue.DispatchQueueEntry, log *zerolog.Logger, wg *sync.WaitGroup, disp dispatcher.Dispatcher, workerNumber int) *Broker {
	broker := Broker{
		ctx:          ctx,
		log:          log,
		queue:        queue,
		wg:           wg,
		dispatcher:   disp,
		workerNumber: workerNumber,
	}
	return &broker
}

// ListenAndProcess starts the worker pool and blocks it on the queue until
// the service context is cancelled. Workers never retry a dispatch: the
// dispatcher's single failover attempt is the only automatic recovery, a
// withdrawal left APPROVED by a crash is re-triggered operationally.
func (b *Broker) ListenAndProcess() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.log.Info().Msg("started listening to dispatch queue")
		g, _ := errgroup.WithContext(b.ctx)
		for i := 0; i < b.workerNumber; i++ {
			w := &dispatchWorker{ID: i, ctx: b.ctx, log: b.log, queue: b.queue, dispatcher: b.dispatcher}
			g.Go(w.processAsync)
		}
		<-b.ctx.Done()
		close(b.queue)
		b.log.Info().Msg("closed dispatch queue")
		err := g.Wait()
		if err != nil {
			b.log.Error().Err(err).Msg("closing errgroup failed")
		}
		b.log.Info().Msg("stopped listening to dispatch queue")
	}()
}

func (w *dispatchWorker) processAsync() error {
	for entry := range w.queue {
		err := w.dispatcher.Dispatch(w.ctx, entry)
		if err != nil {
			// the withdrawal stays in its last durable state and is safe to
			// re-trigger
			w.log.Error().Err(err).Msg(fmt.Sprintf("WID %v: dispatch of withdrawal %s aborted", w.ID, entry.WithdrawalID))
		}
	}
	return nil
}
