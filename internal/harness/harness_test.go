package harness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRun_AllExitCleanlyOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	blockUntilDone := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}

	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, blockUntilDone, blockUntilDone) }()

	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil error on clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_OneFailureCancelsTheRest(t *testing.T) {
	boom := errors.New("boom")

	failFast := func(ctx context.Context) error {
		return boom
	}
	blockUntilDone := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}

	err := Run(context.Background(), failFast, blockUntilDone)
	if !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}
