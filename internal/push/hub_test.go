package push_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jsherman999/fixihub/internal/push"
)

var logLine = push.Envelope{Target: "#log", Swap: "append", Text: "<div>hi</div>"}

func TestHub_FanOutToEverySink(t *testing.T) {
	h := push.NewHub("test")
	sinks := make([]*recorder, 5)
	for i := range sinks {
		sinks[i] = &recorder{}
		subscribe(t, h, sinks[i])
	}

	publish(t, h, logLine)

	for i, s := range sinks {
		got := s.envelopes(t)
		if len(got) != 1 {
			t.Fatalf("sink %d: got %d frames, want 1", i, len(got))
		}
		if got[0] != logLine {
			t.Errorf("sink %d: got %+v, want %+v", i, got[0], logLine)
		}
	}
}

func TestHub_FailingSinkIsolatedAndRemoved(t *testing.T) {
	h := push.NewHub("test")
	s1, s2 := &recorder{}, &recorder{}
	sub1 := subscribe(t, h, s1)
	subscribe(t, h, s2)

	publish(t, h, logLine)
	if s1.count() != 1 || s2.count() != 1 {
		t.Fatalf("first publish: s1=%d s2=%d, want 1 each", s1.count(), s2.count())
	}

	s1.setFail(true)
	second := push.Envelope{Target: "#log", Swap: "append", Text: "<div>again</div>"}
	publish(t, h, second)

	if got := s2.envelopes(t); len(got) != 2 || got[1] != second {
		t.Errorf("s2: got %+v", got)
	}
	if h.Registry().Contains(sub1) {
		t.Error("failed sink still registered")
	}

	s1.setFail(false)
	publish(t, h, logLine)
	if s1.count() != 1 {
		t.Errorf("removed sink kept receiving: %d frames", s1.count())
	}
	if s2.count() != 3 {
		t.Errorf("s2: got %d frames, want 3", s2.count())
	}

	st := h.Stats()
	if st.Dropped != 1 || st.Subscribers != 1 || st.Published != 3 {
		t.Errorf("stats: got %+v", st)
	}
}

func TestHub_PublishNeverFailsOnSinkErrors(t *testing.T) {
	h := push.NewHub("test")
	subscribe(t, h, push.SinkFunc(func([]byte) error { return errors.New("gone") }))
	if err := h.Publish(logLine); err != nil {
		t.Errorf("Publish: got %v, want nil", err)
	}
	if n := h.Registry().Len(); n != 0 {
		t.Errorf("subscribers: got %d, want 0", n)
	}
}

func TestHub_UnsubscribeTwiceAfterFailure(t *testing.T) {
	h := push.NewHub("test")
	bad := &recorder{fail: true}
	good := &recorder{}
	sub := subscribe(t, h, bad)
	subscribe(t, h, good)

	publish(t, h, logLine) // hub's failure path removes bad
	h.Unsubscribe(sub)     // peer-close path arrives second
	h.Unsubscribe(sub)

	if n := h.Registry().Len(); n != 1 {
		t.Fatalf("subscribers: got %d, want 1", n)
	}
	publish(t, h, logLine)
	if good.count() != 2 {
		t.Errorf("good sink: got %d frames, want 2", good.count())
	}
}

func TestHub_LateJoinerSeesOnlyLaterEvents(t *testing.T) {
	h := push.NewHub("test")
	early := &recorder{}
	subscribe(t, h, early)

	e1 := push.Envelope{Target: "#log", Swap: "append", Text: "e1"}
	e2 := push.Envelope{Target: "#log", Swap: "append", Text: "e2"}
	publish(t, h, e1)

	late := &recorder{}
	subscribe(t, h, late)
	publish(t, h, e2)

	got := late.envelopes(t)
	if len(got) != 1 || got[0] != e2 {
		t.Errorf("late sink: got %+v, want only e2", got)
	}
	if early.count() != 2 {
		t.Errorf("early sink: got %d frames, want 2", early.count())
	}
}

func TestHub_PreservesPublishOrder(t *testing.T) {
	h := push.NewHub("test")
	s := &recorder{}
	subscribe(t, h, s)

	for i := 0; i < 20; i++ {
		publish(t, h, push.Envelope{Target: "#log", Swap: "append", Text: fmt.Sprint(i)})
	}
	got := s.envelopes(t)
	for i, e := range got {
		if e.Text != fmt.Sprint(i) {
			t.Fatalf("frame %d: got %q", i, e.Text)
		}
	}
}

func TestHub_ConcurrentPublishersKeepFramesWhole(t *testing.T) {
	h := push.NewHub("test")
	a, b := &recorder{}, &recorder{}
	subscribe(t, h, a)
	subscribe(t, h, b)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = h.Publish(push.Envelope{Target: "#log", Swap: "append", Text: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	// churn the registry while publishing
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			sub, err := h.Subscribe(&recorder{})
			if err == nil {
				h.Unsubscribe(sub)
			}
		}
	}()
	wg.Wait()

	ea, eb := a.envelopes(t), b.envelopes(t)
	if len(ea) != 200 || len(eb) != 200 {
		t.Fatalf("frames: a=%d b=%d, want 200 each", len(ea), len(eb))
	}
	for i := range ea {
		if ea[i] != eb[i] {
			t.Fatalf("sinks disagree on order at %d: %q vs %q", i, ea[i].Text, eb[i].Text)
		}
	}
}

func TestHub_CloseReleasesSubscribers(t *testing.T) {
	h := push.NewHub("test")
	s := &recorder{}
	subscribe(t, h, s)
	h.Close()
	h.Close()

	if n := h.Registry().Len(); n != 0 {
		t.Errorf("subscribers after Close: %d", n)
	}
	if _, err := h.Subscribe(&recorder{}); !errors.Is(err, push.ErrHubClosed) {
		t.Errorf("Subscribe after Close: got %v, want ErrHubClosed", err)
	}
	publish(t, h, logLine)
	if s.count() != 0 {
		t.Error("closed hub delivered a frame")
	}
}

func TestHub_MaxSubscribersOption(t *testing.T) {
	h := push.NewHub("test", push.WithMaxSubscribers(1))
	subscribe(t, h, &recorder{})
	if _, err := h.Subscribe(&recorder{}); !errors.Is(err, push.ErrRegistryFull) {
		t.Errorf("second Subscribe: got %v, want ErrRegistryFull", err)
	}
}
