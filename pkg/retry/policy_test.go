package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http 429", err: errors.New("googleapi: Error 429: quota exceeded"), want: true},
		{name: "grpc resource exhausted", err: errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), want: true},
		{name: "rate limit phrase", err: errors.New("rate limit hit, slow down"), want: true},
		{name: "auth failure", err: errors.New("401 unauthorized"), want: false},
		{name: "transport", err: errors.New("connection reset by peer"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %t", tt.err, got)
			}
		})
	}
}

func TestAssessStateMachine(t *testing.T) {
	p := Policy{InitialDelay: 5 * time.Second, MaxAttempts: 3}
	rateLimited := errors.New("429 too many requests")

	if out := p.Assess(1, nil); out.State != StateSuccess {
		t.Fatalf("success state = %v", out.State)
	}
	if out := p.Assess(1, errors.New("boom")); out.State != StateFatal {
		t.Fatalf("fatal state = %v", out.State)
	}
	if out := p.Assess(1, rateLimited); out.State != StateRetryWait || out.Delay != 5*time.Second {
		t.Fatalf("first retry outcome = %+v", out)
	}
	if out := p.Assess(2, rateLimited); out.State != StateRetryWait || out.Delay != 10*time.Second {
		t.Fatalf("second retry outcome = %+v", out)
	}
	out := p.Assess(3, rateLimited)
	if out.State != StateExhausted {
		t.Fatalf("third attempt state = %v", out.State)
	}
	if !errors.Is(out.Err, ErrExhausted) {
		t.Fatalf("exhausted err = %v", out.Err)
	}
}

func TestDoBackoffGrowth(t *testing.T) {
	var slept []time.Duration
	p := Policy{
		InitialDelay: 5 * time.Second,
		MaxAttempts:  3,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		Log: quietLogger(),
	}

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("429 too many requests")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("result = %q after %d calls", got, calls)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 10*time.Second {
		t.Fatalf("delays = %v", slept)
	}
}

func TestDoExhaustionReported(t *testing.T) {
	var slept []time.Duration
	p := Policy{
		InitialDelay: 5 * time.Second,
		MaxAttempts:  3,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		Log: quietLogger(),
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", errors.New("429 too many requests")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
	// Delays are exactly 5 then 10; no delay follows the final attempt.
	if len(slept) != 2 {
		t.Fatalf("delays = %v", slept)
	}
}

func TestDoFatalPropagatesImmediately(t *testing.T) {
	fatal := errors.New("invalid argument")
	calls := 0
	p := Policy{
		Sleep: func(context.Context, time.Duration) error {
			t.Fatal("fatal errors must not back off")
			return nil
		},
		Log: quietLogger(),
	}
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestDoStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
		Log: quietLogger(),
	}
	_, err := Do(ctx, p, func(context.Context) (string, error) {
		return "", errors.New("429 too many requests")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(discard{})
	return log
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
