package capture

import (
	"testing"
	"time"

	"github.com/glydways/clyde/internal/echoguard"
	"github.com/glydways/clyde/pkg/audio"
	"github.com/glydways/clyde/pkg/provider/vad"
	vadmock "github.com/glydways/clyde/pkg/provider/vad/mock"
)

const (
	testSampleRate = 16000
	testFrameDur   = 30 * time.Millisecond
	testFrameBytes = testSampleRate * 30 / 1000 * 2
)

// script builds a scripted VAD result sequence: nSpeech speech frames
// followed by nSilence silence frames.
func script(nSpeech, nSilence int) []vad.Result {
	var rs []vad.Result
	for i := 0; i < nSpeech; i++ {
		rs = append(rs, vad.Result{Speech: true, Score: 0.9})
	}
	for i := 0; i < nSilence; i++ {
		rs = append(rs, vad.Result{Speech: false, Score: 0.1})
	}
	return rs
}

func newTestSegmenter(t *testing.T, results []vad.Result, guard *echoguard.Guard) (*Segmenter, *[][]byte, *vadmock.Session) {
	t.Helper()

	eng := &vadmock.Engine{Results: results}
	session, err := eng.NewSession(vad.Config{SampleRate: testSampleRate, FrameSizeMs: 30})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var utterances [][]byte
	seg := NewSegmenter(
		SegmenterConfig{SampleRate: testSampleRate, FrameDuration: testFrameDur},
		guard,
		session,
		func(pcm []byte) { utterances = append(utterances, pcm) },
	)
	return seg, &utterances, session.(*vadmock.Session)
}

func feedFrames(seg *Segmenter, n int) {
	frame := make([]byte, testFrameBytes)
	for i := 0; i < n; i++ {
		seg.HandleFrame(audio.Frame{Data: frame, SampleRate: testSampleRate, Channels: 1})
	}
}

func TestSegmenter_UtteranceBoundary(t *testing.T) {
	t.Parallel()

	// 20 speech frames then 24 silence frames: silence crosses the 700 ms
	// threshold on frame 44 and finalizes one utterance.
	seg, utterances, _ := newTestSegmenter(t, script(20, 24), echoguard.New())
	feedFrames(seg, 44)

	if len(*utterances) != 1 {
		t.Fatalf("expected exactly 1 utterance, got %d", len(*utterances))
	}
	// Frames 1-21: the 20 speech frames plus the first silence frame.
	want := 21 * testFrameBytes
	if got := len((*utterances)[0]); got != want {
		t.Errorf("utterance is %d bytes (%d frames), want %d bytes (21 frames)",
			got, got/testFrameBytes, want)
	}
}

func TestSegmenter_ShortUtteranceDiscarded(t *testing.T) {
	t.Parallel()

	// 5 speech frames is 150 ms, below the 400 ms minimum.
	seg, utterances, _ := newTestSegmenter(t, script(5, 24), echoguard.New())
	feedFrames(seg, 29)

	if len(*utterances) != 0 {
		t.Fatalf("expected no utterances for a 150 ms burst, got %d", len(*utterances))
	}
}

func TestSegmenter_SilenceOnlyYieldsNothing(t *testing.T) {
	t.Parallel()

	seg, utterances, _ := newTestSegmenter(t, script(0, 50), echoguard.New())
	feedFrames(seg, 50)

	if len(*utterances) != 0 {
		t.Fatalf("expected no utterances from silence, got %d", len(*utterances))
	}
}

func TestSegmenter_GatedFramesDropped(t *testing.T) {
	t.Parallel()

	guard := echoguard.New()
	// Script speech for every frame; none of it should survive the gate.
	seg, utterances, session := newTestSegmenter(t, script(100, 0), guard)

	// Seed an in-progress utterance, then close the gate mid-utterance.
	feedFrames(seg, 10)
	guard.SetSpeaking(true, false)
	feedFrames(seg, 10)

	if len(*utterances) != 0 {
		t.Fatalf("expected no utterances while gated, got %d", len(*utterances))
	}
	if session.CallCountReset != 1 {
		t.Errorf("expected one VAD reset on gate transition, got %d", session.CallCountReset)
	}
	// Gated frames must not reach the classifier.
	if session.CallCountProcessFrame != 10 {
		t.Errorf("expected 10 classified frames, got %d", session.CallCountProcessFrame)
	}

	// After the gate opens (no holdoff), a fresh utterance can form.
	guard.SetSpeaking(false, false)
	feedFrames(seg, 20)
	if session.CallCountProcessFrame != 30 {
		t.Errorf("expected classification to resume after the gate opens, got %d frames", session.CallCountProcessFrame)
	}
}

func TestPCMDuration(t *testing.T) {
	t.Parallel()

	if got := pcmDuration(testFrameBytes, testSampleRate); got != testFrameDur {
		t.Errorf("pcmDuration(one frame) = %v, want %v", got, testFrameDur)
	}
	if got := pcmDuration(0, testSampleRate); got != 0 {
		t.Errorf("pcmDuration(0) = %v, want 0", got)
	}
}
