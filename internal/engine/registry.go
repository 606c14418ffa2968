package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/cmoscardi/textbook-tts/internal/observability"
)

// Role describes which inference resource a process is bound to.
type Role string

const (
	// RoleParser binds the process to the layout recognizer.
	RoleParser Role = "parser"
	// RoleConverter binds the process to the speech synthesizer.
	RoleConverter Role = "converter"
	// RoleNone binds the process to nothing; API processes use this.
	RoleNone Role = "none"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleParser, RoleConverter, RoleNone:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown worker role %q", s)
	}
}

// Registry owns the process-wide singleton inference resources. The
// role-bound resource is constructed eagerly at startup with a device
// health check; the off-role resource is constructed lazily on first use
// and the fallback is logged as degraded operation. Once constructed, a
// resource lives for the remainder of the process.
type Registry struct {
	mu     sync.Mutex
	logger *observability.Logger
	role   Role

	newRecognizer  func() (Recognizer, error)
	newSynthesizer func() (Synthesizer, error)

	recognizer  Recognizer
	synthesizer Synthesizer
}

// NewRegistry creates a registry bound to the given role. The factory
// functions construct the underlying clients; they are invoked at most once
// each.
func NewRegistry(logger *observability.Logger, role Role,
	newRecognizer func() (Recognizer, error),
	newSynthesizer func() (Synthesizer, error)) *Registry {
	return &Registry{
		logger:         logger,
		role:           role,
		newRecognizer:  newRecognizer,
		newSynthesizer: newSynthesizer,
	}
}

// Role returns the role the registry was bound to.
func (r *Registry) Role() Role {
	return r.role
}

// Startup eagerly constructs the role-bound resource and runs its device
// health check. A failure here means the process cannot do its job; callers
// treat the error as fatal.
func (r *Registry) Startup(ctx context.Context) error {
	switch r.role {
	case RoleParser:
		rec, err := r.Recognizer(ctx)
		if err != nil {
			return fmt.Errorf("construct recognizer: %w", err)
		}
		if err := rec.Health(ctx); err != nil {
			return fmt.Errorf("recognizer device health check: %w", err)
		}
		r.logger.Info().Str("role", string(r.role)).Msg("Recognizer ready")
	case RoleConverter:
		syn, err := r.Synthesizer(ctx)
		if err != nil {
			return fmt.Errorf("construct synthesizer: %w", err)
		}
		if err := syn.Health(ctx); err != nil {
			return fmt.Errorf("synthesizer device health check: %w", err)
		}
		r.logger.Info().Str("role", string(r.role)).Msg("Synthesizer ready")
	case RoleNone:
	}
	return nil
}

// Recognizer returns the process-wide recognizer, constructing it on first
// use. Requesting it from a non-parser process works but is logged as
// degraded operation.
func (r *Registry) Recognizer(ctx context.Context) (Recognizer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recognizer != nil {
		return r.recognizer, nil
	}

	if r.role != RoleParser {
		r.logger.Warn().
			Str("role", string(r.role)).
			Msg("Loading recognizer outside parser role, running degraded")
	}

	rec, err := r.newRecognizer()
	if err != nil {
		return nil, err
	}
	r.recognizer = rec
	return rec, nil
}

// Synthesizer returns the process-wide synthesizer, constructing it on
// first use. Requesting it from a non-converter process works but is logged
// as degraded operation.
func (r *Registry) Synthesizer(ctx context.Context) (Synthesizer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.synthesizer != nil {
		return r.synthesizer, nil
	}

	if r.role != RoleConverter {
		r.logger.Warn().
			Str("role", string(r.role)).
			Msg("Loading synthesizer outside converter role, running degraded")
	}

	syn, err := r.newSynthesizer()
	if err != nil {
		return nil, err
	}
	r.synthesizer = syn
	return syn, nil
}

// Loaded returns the resources constructed so far, for reclamation sweeps.
func (r *Registry) Loaded() []Capability {
	r.mu.Lock()
	defer r.mu.Unlock()

	var caps []Capability
	if r.recognizer != nil {
		caps = append(caps, r.recognizer)
	}
	if r.synthesizer != nil {
		caps = append(caps, r.synthesizer)
	}
	return caps
}
