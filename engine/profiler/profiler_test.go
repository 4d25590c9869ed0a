package profiler

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecordAggregates(t *testing.T) {
	p := NewProfiler()
	p.Record("raymarch", 2*time.Millisecond)
	p.Record("raymarch", 4*time.Millisecond)
	p.Record("temporal", time.Millisecond)

	stages := p.Stages()
	if len(stages) != 2 || stages[0].Name != "raymarch" {
		t.Fatalf("expected stages in first-recorded order, got %+v", stages)
	}
	rm := stages[0]
	if rm.Calls != 2 || rm.Max != 4*time.Millisecond || rm.Last != 4*time.Millisecond {
		t.Fatalf("unexpected aggregate %+v", rm)
	}
	if rm.Mean() != 3*time.Millisecond {
		t.Fatalf("expected 3ms mean, got %s", rm.Mean())
	}
}

func TestTimePropagatesError(t *testing.T) {
	p := NewProfiler()
	want := errors.New("boom")
	if err := p.Time("compose", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected the wrapped error, got %v", err)
	}
	if p.Stages()[0].Calls != 1 {
		t.Fatal("expected the failed call to be recorded")
	}
}

func TestMeasure(t *testing.T) {
	p := NewProfiler()
	ran := 0
	for range 3 {
		p.Measure("synth", func() { ran++ })
	}
	stages := p.Stages()
	if ran != 3 || len(stages) != 1 || stages[0].Name != "synth" || stages[0].Calls != 3 {
		t.Fatalf("expected 3 recorded synth calls, got %d runs and %+v", ran, stages)
	}
}

func TestTickInterval(t *testing.T) {
	p := NewProfiler()
	p.SetInterval(time.Hour)
	if p.Tick() {
		t.Fatal("expected no report before the interval elapses")
	}
	p.SetInterval(0)
	if !p.Tick() {
		t.Fatal("expected a report with a zero interval")
	}
	if p.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", p.Frames())
	}
}

func TestReport(t *testing.T) {
	p := NewProfiler()
	p.Record("denoise", time.Millisecond)
	out := p.Report()
	for _, want := range []string{"Stage", "denoise", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}
