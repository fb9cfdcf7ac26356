package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNoBackend reports that neither client generation could be constructed.
// This is a startup-time fatal condition for the caller.
var ErrNoBackend = errors.New("backend: no client generation available")

// Constructor builds one client generation from options. Constructors must
// not perform network calls; failure means the generation is unavailable.
type Constructor func(ctx context.Context, opts Options) (Backend, error)

// Selector picks the preferred client generation at startup and falls back
// to the legacy generation when the preferred one cannot be built.
type Selector struct {
	preferred Constructor
	legacy    Constructor
	log       logrus.FieldLogger
}

// NewSelector wires the two generation constructors.
func NewSelector(preferred, legacy Constructor, log logrus.FieldLogger) *Selector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Selector{preferred: preferred, legacy: legacy, log: log}
}

// Select builds the active backend. forceLegacy skips the preferred
// generation entirely. The returned error is non-nil only when no generation
// is constructible.
func (s *Selector) Select(ctx context.Context, opts Options, forceLegacy bool) (Backend, error) {
	if !forceLegacy && s.preferred != nil {
		b, err := s.preferred(ctx, opts)
		if err == nil {
			s.logSelected(b)
			return b, nil
		}
		s.log.WithError(err).Warn("preferred backend generation unavailable, falling back")
	}
	if s.legacy == nil {
		return nil, ErrNoBackend
	}
	b, err := s.legacy(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
	}
	s.logSelected(b)
	return b, nil
}

func (s *Selector) logSelected(b Backend) {
	caps := b.Capabilities()
	s.log.WithFields(logrus.Fields{
		"generation":       caps.Generation,
		"native_search":    caps.NativeSearch,
		"structured_tools": caps.StructuredTools,
	}).Info("backend generation selected")
}
