package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/nauzawa/voiceloop/pkg/conversation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	caps CapabilityDescriptor
}

func (s *stubBackend) Capabilities() CapabilityDescriptor { return s.caps }
func (s *stubBackend) Generate(context.Context, []conversation.Turn, []ToolDescriptor) (*Reply, error) {
	return &Reply{Text: "ok"}, nil
}
func (s *stubBackend) Close() error { return nil }

func constructorFor(b Backend, err error) Constructor {
	return func(context.Context, Options) (Backend, error) { return b, err }
}

func TestSelectorPrefersCurrentGeneration(t *testing.T) {
	preferred := &stubBackend{caps: CapabilityDescriptor{Generation: "genai", NativeSearch: true, StructuredTools: true}}
	legacy := &stubBackend{caps: CapabilityDescriptor{Generation: "legacy", StructuredTools: true}}

	sel := NewSelector(constructorFor(preferred, nil), constructorFor(legacy, nil), discardLogger())
	got, err := sel.Select(context.Background(), Options{APIKey: "k"}, false)
	require.NoError(t, err)
	require.Equal(t, "genai", got.Capabilities().Generation)
	require.True(t, got.Capabilities().NativeSearch)
}

func TestSelectorFallsBackOnConstructorError(t *testing.T) {
	legacy := &stubBackend{caps: CapabilityDescriptor{Generation: "legacy", StructuredTools: true}}
	sel := NewSelector(constructorFor(nil, errors.New("no such package")), constructorFor(legacy, nil), discardLogger())

	got, err := sel.Select(context.Background(), Options{APIKey: "k"}, false)
	require.NoError(t, err)
	require.Equal(t, "legacy", got.Capabilities().Generation)
	require.False(t, got.Capabilities().NativeSearch)
}

func TestSelectorForceLegacySkipsPreferred(t *testing.T) {
	preferredCalled := false
	preferred := func(context.Context, Options) (Backend, error) {
		preferredCalled = true
		return &stubBackend{caps: CapabilityDescriptor{Generation: "genai"}}, nil
	}
	legacy := &stubBackend{caps: CapabilityDescriptor{Generation: "legacy"}}

	sel := NewSelector(preferred, constructorFor(legacy, nil), discardLogger())
	got, err := sel.Select(context.Background(), Options{APIKey: "k"}, true)
	require.NoError(t, err)
	require.Equal(t, "legacy", got.Capabilities().Generation)
	require.False(t, preferredCalled)
}

func TestSelectorReportsFatalWhenNothingConstructible(t *testing.T) {
	sel := NewSelector(
		constructorFor(nil, errors.New("preferred broken")),
		constructorFor(nil, errors.New("legacy broken")),
		discardLogger(),
	)
	_, err := sel.Select(context.Background(), Options{}, false)
	require.ErrorIs(t, err, ErrNoBackend)
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
