package sequencer

import (
	"reflect"
	"testing"
)

type recorder struct {
	stages   []Stage
	progress []int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnStageChanged:    func(s Stage) { r.stages = append(r.stages, s) },
		OnProgressChanged: func(p int) { r.progress = append(r.progress, p) },
	}
}

func newTestSequencer(t *testing.T, cfg Config) (*Sequencer, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := New(cfg, rec.hooks())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, rec
}

func TestNew_StartsAtFirstStage(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())

	if s.Current() != Verification {
		t.Errorf("Current() = %q, want verification", s.Current())
	}
	if got := s.Completed(); len(got) != 0 {
		t.Errorf("Completed() = %v, want empty", got)
	}
	if s.ProgressPercent() != 0 {
		t.Errorf("ProgressPercent() = %d, want 0", s.ProgressPercent())
	}
	if len(rec.stages) != 0 || len(rec.progress) != 0 {
		t.Error("hooks fired during construction")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no stages", Config{}},
		{"progress length mismatch", Config{Stages: []Stage{Verification}, Progress: []int{10, 20}}},
		{"duplicate stage", Config{Stages: []Stage{Verification, Verification}, Progress: []int{10, 20}}},
		{"finished in list", Config{Stages: []Stage{Verification, Finished}, Progress: []int{10, 100}}},
		{"empty stage", Config{Stages: []Stage{""}, Progress: []int{10}}},
		{"decreasing progress", Config{Stages: []Stage{Verification, GateA}, Progress: []int{60, 50}}},
		{"progress above 100", Config{Stages: []Stage{Verification}, Progress: []int{120}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := New(tt.cfg, Hooks{}); err == nil {
				t.Error("New accepted invalid config")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig invalid: %v", err)
	}
}

func TestMarkComplete_AdvancesThroughToFinished(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())

	s.MarkComplete(Verification)
	s.MarkComplete(GateA)
	s.MarkComplete(GateB)

	if !s.Done() || s.Current() != Finished {
		t.Errorf("Current() = %q, want finished", s.Current())
	}
	if want := []Stage{GateA, GateB, Finished}; !reflect.DeepEqual(rec.stages, want) {
		t.Errorf("stage changes = %v, want %v", rec.stages, want)
	}
	if want := []int{15, 50, 100}; !reflect.DeepEqual(rec.progress, want) {
		t.Errorf("progress changes = %v, want %v", rec.progress, want)
	}
}

func TestMarkComplete_Idempotent(t *testing.T) {
	once, _ := newTestSequencer(t, DefaultConfig())
	twice, rec := newTestSequencer(t, DefaultConfig())

	once.MarkComplete(Verification)
	twice.MarkComplete(Verification)
	twice.MarkComplete(Verification)

	if !reflect.DeepEqual(once.Completed(), twice.Completed()) {
		t.Errorf("Completed() differs: %v vs %v", once.Completed(), twice.Completed())
	}
	if once.Current() != twice.Current() {
		t.Errorf("Current() differs: %q vs %q", once.Current(), twice.Current())
	}
	if len(rec.stages) != 1 || len(rec.progress) != 1 {
		t.Errorf("repeated completion re-fired hooks: stages=%v progress=%v", rec.stages, rec.progress)
	}
}

func TestMarkComplete_NonCurrentStageDoesNotMove(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())

	s.MarkComplete(GateB)
	if s.Current() != Verification {
		t.Errorf("Current() = %q, want verification", s.Current())
	}
	if !s.IsCompleted(GateB) {
		t.Error("GateB should be completed")
	}
	if s.ProgressPercent() != 100 {
		t.Errorf("ProgressPercent() = %d, want 100 (keyed to highest completed)", s.ProgressPercent())
	}
	if len(rec.stages) != 0 {
		t.Errorf("stage changed unexpectedly: %v", rec.stages)
	}
}

func TestMarkComplete_UnknownStage(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())
	s.MarkComplete("bogus")
	s.MarkComplete(Finished)
	if len(s.Completed()) != 0 || len(rec.stages) != 0 {
		t.Error("unknown stage completion changed state")
	}
}

// A trusted external jump back-fills the stages it skipped.
func TestJumpTo_BackFillsEarlierStages(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())

	if !s.JumpTo(GateB) {
		t.Fatal("JumpTo(GateB) = false, want true")
	}
	if want := []Stage{Verification, GateA}; !reflect.DeepEqual(s.Completed(), want) {
		t.Errorf("Completed() = %v, want %v", s.Completed(), want)
	}
	if s.Current() != GateB {
		t.Errorf("Current() = %q, want gate-b", s.Current())
	}
	if s.IsCompleted(GateB) {
		t.Error("jump target must not be completed by the jump")
	}
	if want := []int{50}; !reflect.DeepEqual(rec.progress, want) {
		t.Errorf("progress changes = %v, want %v", rec.progress, want)
	}
}

func TestJumpTo_RewindToCompleted(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())
	s.MarkComplete(Verification)
	s.MarkComplete(GateA)

	if !s.JumpTo(Verification) {
		t.Fatal("rewind refused")
	}
	if s.Current() != Verification {
		t.Errorf("Current() = %q, want verification", s.Current())
	}
	// Rewinding never un-completes anything.
	if want := []Stage{Verification, GateA}; !reflect.DeepEqual(s.Completed(), want) {
		t.Errorf("Completed() = %v, want %v", s.Completed(), want)
	}
	if s.ProgressPercent() != 50 {
		t.Errorf("ProgressPercent() = %d, want 50", s.ProgressPercent())
	}

	// Completing the rewound stage again advances to its successor.
	s.MarkComplete(Verification)
	if s.Current() != GateA {
		t.Errorf("Current() = %q, want gate-a", s.Current())
	}
	if want := []Stage{GateA, GateB, Verification, GateA}; !reflect.DeepEqual(rec.stages, want) {
		t.Errorf("stage changes = %v, want %v", rec.stages, want)
	}
}

func TestJumpTo_UntrustedRefusesBeyondFrontier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrustExternalJumps = false
	s, rec := newTestSequencer(t, cfg)

	if s.JumpTo(GateB) {
		t.Error("JumpTo(GateB) allowed without trust")
	}
	if s.JumpTo(Finished) {
		t.Error("JumpTo(Finished) allowed without trust")
	}
	if len(s.Completed()) != 0 || len(rec.stages) != 0 {
		t.Error("refused jump changed state")
	}

	s.MarkComplete(Verification)
	if s.CanJumpTo(GateB) {
		t.Error("CanJumpTo(GateB) = true with only verification complete")
	}
	if !s.CanJumpTo(GateA) || !s.CanJumpTo(Verification) {
		t.Error("frontier and completed stages should be navigable")
	}
	if !s.JumpTo(Verification) {
		t.Error("rewind refused without trust")
	}
}

func TestCanJumpTo(t *testing.T) {
	s, _ := newTestSequencer(t, DefaultConfig())

	if !s.CanJumpTo(Verification) {
		t.Error("first stage should always be navigable")
	}
	if s.CanJumpTo(GateA) || s.CanJumpTo(GateB) || s.CanJumpTo(Finished) {
		t.Error("nothing beyond the first stage is navigable at start")
	}
	if s.CanJumpTo("bogus") {
		t.Error("unknown stage navigable")
	}

	s.MarkComplete(Verification)
	s.MarkComplete(GateA)
	s.MarkComplete(GateB)
	if !s.CanJumpTo(Finished) {
		t.Error("Finished should be navigable once the last stage completes")
	}
}

func TestJumpTo_Unknown(t *testing.T) {
	s, _ := newTestSequencer(t, DefaultConfig())
	if s.JumpTo("bogus") {
		t.Error("JumpTo(unknown) = true")
	}
}

func TestJumpTo_FinishedBackFillsEverything(t *testing.T) {
	s, _ := newTestSequencer(t, DefaultConfig())
	if !s.JumpTo(Finished) {
		t.Fatal("trusted JumpTo(Finished) refused")
	}
	if want := []Stage{Verification, GateA, GateB}; !reflect.DeepEqual(s.Completed(), want) {
		t.Errorf("Completed() = %v, want %v", s.Completed(), want)
	}
	if s.ProgressPercent() != 100 {
		t.Errorf("ProgressPercent() = %d, want 100", s.ProgressPercent())
	}
}

func TestProgress_MonotonicUnderMixedOperations(t *testing.T) {
	s, rec := newTestSequencer(t, DefaultConfig())

	ops := []func(){
		func() { s.MarkComplete(Verification) },
		func() { s.JumpTo(Verification) },
		func() { s.MarkComplete(GateB) },
		func() { s.JumpTo(GateA) },
		func() { s.MarkComplete(GateA) },
		func() { s.JumpTo(Verification) },
	}
	last := 0
	for i, op := range ops {
		op()
		if p := s.ProgressPercent(); p < last {
			t.Fatalf("op %d: progress dropped from %d to %d", i, last, p)
		}
		last = s.ProgressPercent()
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] < rec.progress[i-1] {
			t.Errorf("progress hook sequence not monotonic: %v", rec.progress)
		}
	}
}

func TestCustomStages(t *testing.T) {
	s, _ := newTestSequencer(t, Config{
		Stages:   []Stage{"intro", "verify"},
		Progress: []int{40, 100},
	})
	s.MarkComplete("intro")
	if s.Current() != "verify" {
		t.Errorf("Current() = %q, want verify", s.Current())
	}
	// Trust disabled by the zero value.
	s2, _ := newTestSequencer(t, Config{
		Stages:   []Stage{"intro", "verify", "done"},
		Progress: []int{10, 20, 100},
	})
	if s2.JumpTo("done") {
		t.Error("zero-value config should not trust external jumps")
	}
}

func TestStages_ReturnsCopy(t *testing.T) {
	s, _ := newTestSequencer(t, DefaultConfig())
	st := s.Stages()
	st[0] = "mutated"
	if s.Stages()[0] != Verification {
		t.Error("Stages() exposed internal slice")
	}
}

func TestChain(t *testing.T) {
	var order []string
	h := Chain(
		Hooks{OnStageChanged: func(Stage) { order = append(order, "first") }},
		Hooks{},
		Hooks{
			OnStageChanged:    func(Stage) { order = append(order, "second") },
			OnProgressChanged: func(int) { order = append(order, "progress") },
		},
	)
	s, err := New(DefaultConfig(), h)
	if err != nil {
		t.Fatal(err)
	}
	s.MarkComplete(Verification)
	if want := []string{"progress", "first", "second"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
