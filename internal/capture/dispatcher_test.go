package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	sttmock "github.com/glydways/clyde/pkg/provider/stt/mock"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := &sttmock.Provider{
		Transcripts: []string{"first", "second", "third"},
	}
	d := NewDispatcher(provider, testSampleRate, "en")
	d.Start(ctx)

	pcm := make([]byte, testFrameBytes)
	d.Enqueue(pcm)
	d.Enqueue(pcm)
	d.Enqueue(pcm)

	for _, want := range []string{"first", "second", "third"} {
		got, err := d.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.Text != want {
			t.Errorf("expected %q, got %q", want, got.Text)
		}
		if got.CapturedAt.IsZero() {
			t.Error("transcript should carry a capture timestamp")
		}
	}
}

func TestDispatcher_FailedTranscriptionDropsUtterance(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := &sttmock.Provider{TranscribeError: errors.New("engine exploded")}
	d := NewDispatcher(provider, testSampleRate, "en")
	d.Start(ctx)

	d.Enqueue(make([]byte, testFrameBytes))

	// The failed utterance produces nothing; Next should still be waiting
	// when the deadline hits, and the worker must survive the failure.
	shortCtx, shortCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer shortCancel()
	if _, err := d.Next(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if provider.CallCount() != 1 {
		t.Errorf("expected 1 transcription attempt, got %d", provider.CallCount())
	}
}

func TestDispatcher_EmptyTranscriptDropped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := &sttmock.Provider{Transcripts: []string{"", "hello"}}
	d := NewDispatcher(provider, testSampleRate, "en")
	d.Start(ctx)

	d.Enqueue(make([]byte, testFrameBytes))
	d.Enqueue(make([]byte, testFrameBytes))

	got, err := d.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("empty transcript should be skipped, got %q", got.Text)
	}
}

func TestDispatcher_CancelStopsWorker(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	provider := &sttmock.Provider{}
	d := NewDispatcher(provider, testSampleRate, "en")
	d.Start(ctx)

	cancel()
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancellation")
	}
}
