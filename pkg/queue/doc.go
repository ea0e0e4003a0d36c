// Package queue runs named periodic tasks on one goroutine.
//
// Tasks are registered with a Schedule and run in registration order
// whenever they are due, so two tasks never overlap and a slow task delays
// the ones behind it. Missed runs are dropped rather than replayed. A task
// that panics is recovered, logged and reported as a failed run.
//
//	s := queue.NewScheduler(queue.WithCheckInterval(time.Minute))
//	_ = s.AddTask(queue.NewPeriodicTaskHandler("grace_expiry", expire), queue.EveryInterval(time.Hour))
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop(context.Background())
//
// State lives in memory only: periodic work here is re-derived from the
// database on every run, so nothing needs to survive a restart.
package queue
