package email

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BroadcastResult aggregates the outcome of a multi-recipient send.
type BroadcastResult struct {
	Sent   int
	Failed int
	// Errors maps recipient address to its delivery error.
	Errors map[string]error
}

// Broadcast sends the same message to every recipient independently. One
// failed delivery never stops the others. At most concurrency sends run at once;
// values below 1 mean sequential delivery.
func Broadcast(ctx context.Context, sender Sender, recipients []string, msg SendEmailParams, concurrency int) BroadcastResult {
	res := BroadcastResult{Errors: make(map[string]error)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, to := range recipients {
		g.Go(func() error {
			params := msg
			params.SendTo = to

			_, err := sender.SendEmail(ctx, params)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Errors[to] = err
			} else {
				res.Sent++
			}
			return nil
		})
	}

	_ = g.Wait()
	return res
}
