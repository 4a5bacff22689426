package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/monarchkernel/monarch/dispatcher"
)

func TestRunOperationAndWait(t *testing.T) {
	k := New(Config{MaxThreadCount: 2, JobsPerThread: 4}, nil)

	ran := make(chan struct{})
	op := dispatcher.NewOperation(dispatcher.RunnableFunc(func(ctx context.Context) error {
		close(ran)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := k.RunOperationAndWait(ctx, op); err != nil {
		t.Fatalf("RunOperationAndWait: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("operation did not run")
	}
}

func TestKernelDefaultsPoolSize(t *testing.T) {
	k := New(Config{}, nil)
	if k.Dispatcher() == nil {
		t.Fatal("dispatcher not constructed")
	}
	if k.State() == nil {
		t.Fatal("state not constructed")
	}
}
