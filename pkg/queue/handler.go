package queue

import "context"

type (
	// Handler is a named unit of periodic work.
	Handler interface {
		Name() string
		Handle(ctx context.Context) error
	}

	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{name: name, handler: handler}
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string { return h.name }

func (h *periodicTaskHandler) Handle(ctx context.Context) error {
	return h.handler(ctx)
}
