package process_test

import (
	"errors"
	"testing"

	"corebridge/process-service/internal/process"
)

var allStages = []process.Stage{
	process.StageApplied, process.StageDocumentReview, process.StageDocumentPass, process.StageDocumentFail,
	process.StageCodingTest, process.StageCodingPass, process.StageCodingFail,
	process.StageInterview1, process.StageInterview1Pass, process.StageInterview1Fail,
	process.StageInterview2, process.StageInterview2Pass, process.StageInterview2Fail,
	process.StageFinalReview, process.StageFinalPass, process.StageFinalFail,
}

// ── ParseStage ─────────────────────────────────────────────────────────────

func TestParseStage_ValidValues(t *testing.T) {
	for _, s := range allStages {
		got, err := process.ParseStage(string(s))
		if err != nil {
			t.Errorf("ParseStage(%q) returned unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStage(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStage_InvalidValues(t *testing.T) {
	for _, raw := range []string{"", "UNKNOWN", "applied", "HIRED", " APPLIED"} {
		_, err := process.ParseStage(raw)
		if !errors.Is(err, process.ErrInvalidStage) {
			t.Errorf("ParseStage(%q) error = %v, want ErrInvalidStage", raw, err)
		}
	}
}

// ── Outcomes ───────────────────────────────────────────────────────────────

func TestOutcomes(t *testing.T) {
	passes, fails, terminals := 0, 0, 0
	for _, s := range allStages {
		if s.IsPass() {
			passes++
		}
		if s.IsFail() {
			fails++
		}
		if s.IsTerminal() {
			terminals++
			if !s.IsPass() && !s.IsFail() {
				t.Errorf("terminal %s is neither pass nor fail", s)
			}
		} else if s.IsPass() || s.IsFail() {
			t.Errorf("non-terminal %s has an outcome", s)
		}
	}
	if passes != 1 || fails != 5 || terminals != 6 {
		t.Errorf("passes=%d fails=%d terminals=%d, want 1/5/6", passes, fails, terminals)
	}
	if !process.StageFinalPass.IsPass() {
		t.Error("FINAL_PASS should be the pass terminal")
	}
}

// ── CanTransition: every edge of the graph ───────────────────────────────────

func TestCanTransition_ValidEdges(t *testing.T) {
	cases := []struct {
		from process.Stage
		to   process.Stage
	}{
		{process.StageApplied, process.StageDocumentReview},
		{process.StageDocumentReview, process.StageDocumentPass},
		{process.StageDocumentReview, process.StageDocumentFail},
		{process.StageDocumentPass, process.StageCodingTest},
		{process.StageDocumentPass, process.StageInterview1},
		{process.StageCodingTest, process.StageCodingPass},
		{process.StageCodingTest, process.StageCodingFail},
		{process.StageCodingPass, process.StageInterview1},
		{process.StageInterview1, process.StageInterview1Pass},
		{process.StageInterview1, process.StageInterview1Fail},
		{process.StageInterview1Pass, process.StageInterview2},
		{process.StageInterview1Pass, process.StageFinalReview},
		{process.StageInterview2, process.StageInterview2Pass},
		{process.StageInterview2, process.StageInterview2Fail},
		{process.StageInterview2Pass, process.StageFinalReview},
		{process.StageFinalReview, process.StageFinalPass},
		{process.StageFinalReview, process.StageFinalFail},
	}
	edges := 0
	for _, c := range cases {
		if !process.CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s → %s) should be true", c.from, c.to)
		}
	}
	for _, from := range allStages {
		for _, to := range allStages {
			if process.CanTransition(from, to) {
				edges++
			}
		}
	}
	if edges != len(cases) {
		t.Errorf("graph has %d edges, want exactly %d", edges, len(cases))
	}
}

// ── CanTransition: terminal stages have no outgoing transitions ──────────────

func TestCanTransition_FromTerminal(t *testing.T) {
	for _, from := range allStages {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range allStages {
			if process.CanTransition(from, to) {
				t.Errorf("CanTransition(%s → %s) should be false (terminal stage)", from, to)
			}
		}
	}
}

// ── CanTransition: skip-level, backwards and self moves are forbidden ────────

func TestCanTransition_Forbidden(t *testing.T) {
	cases := []struct {
		from process.Stage
		to   process.Stage
	}{
		{process.StageApplied, process.StageDocumentPass},         // skip review
		{process.StageApplied, process.StageFinalPass},            // skip all
		{process.StageDocumentPass, process.StageCodingPass},      // skip test
		{process.StageInterview1Pass, process.StageFinalPass},     // skip final review
		{process.StageDocumentReview, process.StageApplied},       // backwards
		{process.StageFinalReview, process.StageInterview2},       // backwards
		{process.StageInterview1, process.StageInterview1},        // self
		{process.StageCodingTest, process.StageInterview1},        // must pass first
		{process.Stage("BOGUS"), process.StageDocumentReview},     // unknown source
		{process.StageApplied, process.Stage("DOCUMENT_REVIEWS")}, // unknown target
	}
	for _, c := range cases {
		if process.CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s → %s) should be false", c.from, c.to)
		}
	}
}

// ── Metadata ───────────────────────────────────────────────────────────────

func TestAllStages_FunnelOrder(t *testing.T) {
	infos := process.AllStages()
	if len(infos) != len(allStages) {
		t.Fatalf("AllStages returned %d stages, want %d", len(infos), len(allStages))
	}
	for i, info := range infos {
		if info.Stage != allStages[i] {
			t.Errorf("AllStages()[%d] = %s, want %s", i, info.Stage, allStages[i])
		}
		if info.Label == "" {
			t.Errorf("%s has no label", info.Stage)
		}
		if info.Terminal != (len(info.AllowedNext) == 0) {
			t.Errorf("%s terminal flag disagrees with its edges", info.Stage)
		}
	}
}

func TestAllowedNext_ReturnsCopy(t *testing.T) {
	next := process.AllowedNext(process.StageDocumentPass)
	next[0] = process.StageFinalPass
	if !process.CanTransition(process.StageDocumentPass, process.StageCodingTest) {
		t.Error("mutating AllowedNext result changed the graph")
	}
	if got := process.AllowedNext(process.StageFinalPass); got == nil || len(got) != 0 {
		t.Errorf("AllowedNext(FINAL_PASS) = %v, want empty non-nil", got)
	}
}

func TestLookup(t *testing.T) {
	info, err := process.Lookup(process.StageFinalPass)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Label != "Hired" || !info.Pass || !info.Terminal {
		t.Errorf("Lookup(FINAL_PASS) = %+v", info)
	}
	if _, err := process.Lookup("NOPE"); !errors.Is(err, process.ErrInvalidStage) {
		t.Errorf("Lookup(NOPE) error = %v, want ErrInvalidStage", err)
	}
	if got := process.Stage("NOPE").Label(); got != "NOPE" {
		t.Errorf("Label of unknown stage = %q", got)
	}
}
