package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_PropagatesName(t *testing.T) {
	got := make(chan string, 1)

	Go(context.Background(), nil, "worker-42", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	Go(context.Background(), logger, "panicky", func(ctx context.Context) {
		panic("boom")
	})

	require.Eventually(t, func() bool {
		entry := hook.LastEntry()
		return entry != nil && entry.Level == logrus.ErrorLevel
	}, time.Second, 5*time.Millisecond, "panic MUST be recovered and logged")

	entry := hook.LastEntry()
	assert.Equal(t, "Recovered from panic in goroutine", entry.Message)
	assert.Equal(t, "panicky", entry.Data["goroutine"])
	assert.Equal(t, "boom", entry.Data["panic"])
}

func TestGetName_Empty(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
}
