package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownKind       = errors.New("no handler registered for job kind")
	ErrAlreadyRegistered = errors.New("handler already registered for job kind")
)

type entry struct {
	decode func(raw json.RawMessage) (any, error)
	handle func(ctx context.Context, payload any) error
}

// Registry maps job kinds to their payload schema and handler.
type Registry struct {
	handlers map[types.JobKind]entry
	validate *validator.Validate
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.JobKind]entry),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register binds kind to handler. The payload is decoded into P and validated
// with its `validate` struct tags before handler runs.
func Register[P any](r *Registry, kind types.JobKind, handler func(ctx context.Context, payload P) error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, kind)
	}

	r.handlers[kind] = entry{
		decode: func(raw json.RawMessage) (any, error) {
			var p P
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			if err := r.validate.Struct(p); err != nil {
				return nil, err
			}
			return p, nil
		},
		handle: func(ctx context.Context, payload any) error {
			p, ok := payload.(P)
			if !ok {
				return fmt.Errorf("payload type %T does not match kind %s", payload, kind)
			}
			return handler(ctx, p)
		},
	}
	return nil
}

func (r *Registry) lookup(kind types.JobKind) (entry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, exists := r.handlers[kind]
	if !exists {
		return entry{}, custom_errors.Validation("dispatch", fmt.Errorf("%w: %s", ErrUnknownKind, kind))
	}
	return e, nil
}

// Decode parses and validates a raw payload for kind. Unknown kinds and invalid
// payloads are validation errors.
func (r *Registry) Decode(kind types.JobKind, raw json.RawMessage) (any, error) {
	e, err := r.lookup(kind)
	if err != nil {
		return nil, err
	}
	payload, err := e.decode(raw)
	if err != nil {
		return nil, custom_errors.Validation("validate payload", fmt.Errorf("%s: %w", kind, err))
	}
	return payload, nil
}

// Handle runs the handler for kind with a payload returned by Decode.
func (r *Registry) Handle(ctx context.Context, kind types.JobKind, payload any) error {
	e, err := r.lookup(kind)
	if err != nil {
		return err
	}
	return e.handle(ctx, payload)
}

// Dispatch decodes the job payload and runs its handler.
func (r *Registry) Dispatch(ctx context.Context, job *types.Job) error {
	payload, err := r.Decode(job.Kind, job.Payload)
	if err != nil {
		return err
	}
	return r.Handle(ctx, job.Kind, payload)
}

func (r *Registry) Exists(kind types.JobKind) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.handlers[kind]
	return exists
}

func (r *Registry) List() []types.JobKind {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	kinds := make([]types.JobKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
