// Package lifecycle fans several event sources into one stream, with each
// bridge tracked by the lifecycle runtime.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/commentmail/pkg/core"
)

// Merge starts every source and forwards their events to a single channel.
// The channel is closed once all sources are exhausted or ctx is cancelled.
// If a source fails to start, the sources already started are left to drain
// through ctx.
func Merge(ctx context.Context, sources ...core.EventSource) (<-chan core.ChangeEvent, error) {
	if len(sources) == 0 {
		return nil, errors.New("no event sources")
	}

	inputs := make([]<-chan core.ChangeEvent, 0, len(sources))
	for i, src := range sources {
		events, err := src.Events(ctx)
		if err != nil {
			return nil, fmt.Errorf("start source %d: %w", i, err)
		}
		inputs = append(inputs, events)
	}

	out := make(chan core.ChangeEvent)
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		lifecycle.Go(ctx, func(ctx context.Context) error {
			defer wg.Done()
			return forward(ctx, in, out)
		})
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func forward(ctx context.Context, in <-chan core.ChangeEvent, out chan<- core.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-in:
			if !ok {
				return nil
			}
			// core.ChangeEvent implements lifecycle.Event (has String())
			select {
			case out <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
