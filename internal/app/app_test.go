package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glydways/clyde/internal/capture"
	"github.com/glydways/clyde/internal/config"
	"github.com/glydways/clyde/internal/vehicle"
	"github.com/glydways/clyde/pkg/audio"
	audiomock "github.com/glydways/clyde/pkg/audio/mock"
	"github.com/glydways/clyde/pkg/provider/llm"
	llmmock "github.com/glydways/clyde/pkg/provider/llm/mock"
	sttmock "github.com/glydways/clyde/pkg/provider/stt/mock"
	ttsmock "github.com/glydways/clyde/pkg/provider/tts/mock"
	"github.com/glydways/clyde/pkg/provider/vad"
	vadmock "github.com/glydways/clyde/pkg/provider/vad/mock"
)

// testProviders bundles the mock providers handed to New so tests can assert
// on their call records afterwards.
type testProviders struct {
	llm      *llmmock.Provider
	stt      *sttmock.Provider
	tts      *ttsmock.Provider
	vad      *vadmock.Engine
	capture  *audiomock.Capture
	playback *audiomock.Playback
}

func (p *testProviders) providers() *Providers {
	return &Providers{
		LLM:      p.llm,
		STT:      p.stt,
		TTS:      p.tts,
		VAD:      p.vad,
		Capture:  p.capture,
		Playback: p.playback,
	}
}

func newTestProviders() *testProviders {
	return &testProviders{
		llm:      &llmmock.Provider{},
		stt:      &sttmock.Provider{},
		tts:      &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("pcm")}},
		vad:      &vadmock.Engine{},
		capture:  &audiomock.Capture{},
		playback: &audiomock.Playback{},
	}
}

// testConfig points the cabin client at a standalone vehicle mock so New
// does not try to bind a listener of its own.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := httptest.NewServer(vehicle.NewServer(nil).Handler())
	t.Cleanup(srv.Close)

	return &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "anthropic", APIKey: "sk-test", Model: "claude-sonnet-4-20250514"},
			TTS: config.ProviderEntry{Name: "elevenlabs", Voice: "Rachel"},
		},
		Ride: config.RideConfig{
			RiderType:   config.RiderCommuter,
			RouteName:   "Downtown Loop",
			CurrentStop: "Main St",
			NextStop:    "Civic Center",
			DurationSec: 900,
			Passengers:  2,
		},
		Vehicle: config.VehicleConfig{BaseURL: srv.URL},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNew_WiresSubsystems(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if tp.vad.CallCountNewSession != 1 {
		t.Errorf("expected one VAD session, got %d", tp.vad.CallCountNewSession)
	}
	if a.events.Enabled() {
		t.Error("session log should be disabled without a DSN")
	}
	if got := len(a.registry.Definitions()); got == 0 {
		t.Error("tool registry is empty")
	}

	// Shutdown is idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRunIntro_SpeaksRiderTypeCopy(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		rider config.RiderType
		want  string
	}{
		{config.RiderCommuter, "Just speak whenever you're ready"},
		{config.RiderDemo, "Glydways vehicle"},
	} {
		t.Run(string(tc.rider), func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			cfg.Ride.RiderType = tc.rider
			tp := newTestProviders()
			a, err := New(context.Background(), cfg, tp.providers())
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a.player.Start(ctx)

			a.runIntro(ctx)

			calls := tp.tts.SynthesizeCalls
			if len(calls) != 1 {
				t.Fatalf("expected one synthesis call, got %d", len(calls))
			}
			if !strings.Contains(calls[0].Text, tc.want) {
				t.Errorf("intro %q does not contain %q", calls[0].Text, tc.want)
			}
			if a.scheduler.QuietLongEnough() {
				t.Error("intro should have reset the silence clock")
			}
		})
	}
}

func TestHandleTranscript_FullTurn(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	tp.llm.Responses = []*llm.CompletionResponse{{Content: "Lights are at half now."}}

	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.player.Start(ctx)

	a.handleTranscript(ctx, transcriptNow("set the lights to fifty percent"))

	if got := tp.llm.CallCount(); got != 1 {
		t.Fatalf("expected one completion, got %d", got)
	}

	// The system prompt carries the ride context, including the cabin state
	// refreshed from the vehicle API before the turn.
	system := tp.llm.CompleteCalls[0].Req.SystemPrompt
	if !strings.Contains(system, "Downtown Loop") {
		t.Errorf("system prompt missing route: %q", system)
	}
	if !strings.Contains(system, "\"brightness\"") {
		t.Errorf("system prompt missing cabin state: %q", system)
	}

	// The reply was spoken.
	calls := tp.tts.SynthesizeCalls
	if len(calls) != 1 || !strings.Contains(calls[0].Text, "Lights are at half") {
		t.Errorf("unexpected synthesis calls: %+v", calls)
	}
}

func TestHandleTranscript_DuplicateSuppressed(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	tp.llm.Responses = []*llm.CompletionResponse{{Content: "Sure."}}

	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.player.Start(ctx)

	a.handleTranscript(ctx, transcriptNow("warmer please"))
	a.handleTranscript(ctx, transcriptNow("Warmer please"))

	if got := tp.llm.CallCount(); got != 1 {
		t.Errorf("duplicate transcript should not reach the model, got %d completions", got)
	}
}

func TestHandleProactive_RunsOfferTurn(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	tp.llm.Responses = []*llm.CompletionResponse{{Content: "We're about two minutes out from Civic Center."}}

	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.player.Start(ctx)

	err = a.handleProactive(ctx, "pre_arrival", "[PROACTIVE] The ride is arriving soon.")
	if err != nil {
		t.Fatalf("handleProactive: %v", err)
	}

	if got := tp.llm.CallCount(); got != 1 {
		t.Fatalf("expected one completion, got %d", got)
	}
	if len(tp.tts.SynthesizeCalls) != 1 {
		t.Errorf("expected the offer to be spoken, got %d synthesis calls", len(tp.tts.SynthesizeCalls))
	}
	if a.scheduler.QuietLongEnough() {
		t.Error("a proactive turn should reset the silence clock")
	}
}

func TestRun_CaptureStartErrorIsFatal(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	tp.capture.StartError = errors.New("no such device")

	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Run(ctx); err == nil || !strings.Contains(err.Error(), "start capture") {
		t.Errorf("expected capture start failure, got %v", err)
	}
}

// TestRun_EndToEndTurn drives the whole pipeline through the public
// surface: Run comes up, speaks the intro, and a scripted utterance emitted
// through the capture mock flows VAD → transcription → model → speech.
func TestRun_EndToEndTurn(t *testing.T) {
	t.Parallel()

	tp := newTestProviders()
	tp.stt.Transcripts = []string{"how long until we arrive"}
	tp.llm.Responses = []*llm.CompletionResponse{{Content: "About twelve minutes to Civic Center."}}

	// 15 speech frames (450 ms, past the utterance minimum) followed by
	// enough silence to cross the 700 ms finalize threshold.
	speech := make([]vad.Result, 15)
	for i := range speech {
		speech[i] = vad.Result{Speech: true, Score: 0.9}
	}
	tp.vad.Results = speech

	a, err := New(context.Background(), testConfig(t), tp.providers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	// Wait for the intro to finish, then sit out the echo holdoff window so
	// the utterance is not gated as self-playback.
	waitFor(t, 5*time.Second, func() bool { return len(tp.tts.SynthesizeCalls) >= 1 }, "intro was never synthesised")
	time.Sleep(600 * time.Millisecond)

	frame := audio.Frame{Data: make([]byte, 960), SampleRate: sampleRate, Channels: 1}
	for i := 0; i < 40; i++ {
		tp.capture.Emit(frame)
	}

	waitFor(t, 5*time.Second, func() bool { return tp.llm.CallCount() >= 1 }, "utterance never reached the model")
	waitFor(t, 5*time.Second, func() bool { return len(tp.tts.SynthesizeCalls) >= 2 }, "reply was never spoken")

	if got := tp.llm.CompleteCalls[0].Req.Messages; got[len(got)-1].Content != "how long until we arrive" {
		t.Errorf("unexpected user message: %q", got[len(got)-1].Content)
	}

	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}

	if tp.capture.CallCountStop == 0 {
		t.Error("capture device was never stopped")
	}
}

// transcriptNow builds a transcript stamped outside any gating window.
func transcriptNow(text string) capture.Transcript {
	return capture.Transcript{Text: text, CapturedAt: time.Now()}
}
