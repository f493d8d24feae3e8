package turn

import (
	"testing"
	"time"
)

const (
	testSampleRate = 16000
	testFrameSize  = testSampleRate / 50 // 20ms
)

func testSegmenter() *Segmenter {
	return NewSegmenter(SegmenterConfig{
		SessionID:       "session-1",
		SampleRate:      testSampleRate,
		Threshold:       0.01,
		HoldTime:        60 * time.Millisecond,
		MinTurnDuration: 40 * time.Millisecond,
		MaxTurnDuration: 200 * time.Millisecond,
	})
}

func loudFrame() []int16 {
	frame := make([]int16, testFrameSize)
	for i := range frame {
		frame[i] = 8000
	}
	return frame
}

func silentFrame() []int16 {
	return make([]int16, testFrameSize)
}

func TestPush_SilenceEmitsNothing(t *testing.T) {
	s := testSegmenter()
	for i := 0; i < 50; i++ {
		if got := s.Push(silentFrame()); got != nil {
			t.Fatalf("silence produced a turn: %+v", got)
		}
	}
	if s.NextSeq() != 0 {
		t.Fatalf("expected seq untouched, got %d", s.NextSeq())
	}
}

func TestPush_ClosesUtteranceAfterHold(t *testing.T) {
	s := testSegmenter()
	for i := 0; i < 5; i++ {
		if got := s.Push(loudFrame()); got != nil {
			t.Fatalf("turn closed too early at frame %d", i)
		}
	}
	var got *Turn
	for i := 0; i < 3; i++ {
		got = s.Push(silentFrame())
	}
	if got == nil {
		t.Fatal("expected a turn after hold time of silence")
	}
	if got.Seq != 0 {
		t.Fatalf("expected seq 0, got %d", got.Seq)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", got.Status)
	}
	// Buffer spans speech plus trailing silence: 8 frames.
	if len(got.Clip.Samples) != 8*testFrameSize {
		t.Fatalf("expected %d samples, got %d", 8*testFrameSize, len(got.Clip.Samples))
	}
	if s.NextSeq() != 1 {
		t.Fatalf("expected next seq 1, got %d", s.NextSeq())
	}
}

func TestPush_ForcedBoundaryAtMaxDuration(t *testing.T) {
	s := testSegmenter()
	var got *Turn
	for i := 0; i < 10 && got == nil; i++ {
		got = s.Push(loudFrame())
	}
	if got == nil {
		t.Fatal("expected forced boundary at max turn duration")
	}
	if got.Clip.Duration() != 200*time.Millisecond {
		t.Fatalf("expected 200ms clip, got %v", got.Clip.Duration())
	}
}

func TestPush_DiscardsDegenerateTurnWithoutSeq(t *testing.T) {
	s := testSegmenter()
	s.Push(loudFrame())
	var got *Turn
	for i := 0; i < 3; i++ {
		got = s.Push(silentFrame())
	}
	if got != nil {
		t.Fatalf("expected degenerate turn to be discarded, got %+v", got)
	}
	if s.NextSeq() != 0 {
		t.Fatalf("discard consumed a sequence number: %d", s.NextSeq())
	}

	// The next real utterance still gets seq 0.
	for i := 0; i < 5; i++ {
		s.Push(loudFrame())
	}
	for i := 0; i < 3; i++ {
		got = s.Push(silentFrame())
	}
	if got == nil || got.Seq != 0 {
		t.Fatalf("expected next turn with seq 0, got %+v", got)
	}
}

func TestFlush_ClosesOpenUtterance(t *testing.T) {
	s := testSegmenter()
	for i := 0; i < 5; i++ {
		s.Push(loudFrame())
	}
	got := s.Flush()
	if got == nil {
		t.Fatal("expected flush to close the open utterance")
	}
	if got.Seq != 0 {
		t.Fatalf("expected seq 0, got %d", got.Seq)
	}
	if s.Flush() != nil {
		t.Fatal("expected second flush to be a no-op")
	}
}

func TestPush_SequenceNumbersAreConsecutive(t *testing.T) {
	s := testSegmenter()
	emit := func() *Turn {
		var got *Turn
		for i := 0; i < 5; i++ {
			s.Push(loudFrame())
		}
		for i := 0; i < 3; i++ {
			got = s.Push(silentFrame())
		}
		return got
	}
	for want := uint64(0); want < 3; want++ {
		got := emit()
		if got == nil || got.Seq != want {
			t.Fatalf("expected turn seq %d, got %+v", want, got)
		}
	}
}
