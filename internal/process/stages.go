// Package process defines the recruitment pipeline state machine.
//
// Valid stage graph:
//
//	APPLIED          ──► DOCUMENT_REVIEW
//	DOCUMENT_REVIEW  ──► DOCUMENT_PASS | DOCUMENT_FAIL
//	DOCUMENT_PASS    ──► CODING_TEST | INTERVIEW_1
//	CODING_TEST      ──► CODING_PASS | CODING_FAIL
//	CODING_PASS      ──► INTERVIEW_1
//	INTERVIEW_1      ──► INTERVIEW_1_PASS | INTERVIEW_1_FAIL
//	INTERVIEW_1_PASS ──► INTERVIEW_2 | FINAL_REVIEW
//	INTERVIEW_2      ──► INTERVIEW_2_PASS | INTERVIEW_2_FAIL
//	INTERVIEW_2_PASS ──► FINAL_REVIEW
//	FINAL_REVIEW     ──► FINAL_PASS | FINAL_FAIL
//
// FINAL_PASS is the only successful terminal stage; every *_FAIL stage is a
// failed terminal stage.
package process

import (
	"errors"
	"fmt"
)

// Stage values mirror the recruitment_stage enum persisted by the stores.
type Stage string

const (
	StageApplied        Stage = "APPLIED"
	StageDocumentReview Stage = "DOCUMENT_REVIEW"
	StageDocumentPass   Stage = "DOCUMENT_PASS"
	StageDocumentFail   Stage = "DOCUMENT_FAIL"
	StageCodingTest     Stage = "CODING_TEST"
	StageCodingPass     Stage = "CODING_PASS"
	StageCodingFail     Stage = "CODING_FAIL"
	StageInterview1     Stage = "INTERVIEW_1"
	StageInterview1Pass Stage = "INTERVIEW_1_PASS"
	StageInterview1Fail Stage = "INTERVIEW_1_FAIL"
	StageInterview2     Stage = "INTERVIEW_2"
	StageInterview2Pass Stage = "INTERVIEW_2_PASS"
	StageInterview2Fail Stage = "INTERVIEW_2_FAIL"
	StageFinalReview    Stage = "FINAL_REVIEW"
	StageFinalPass      Stage = "FINAL_PASS"
	StageFinalFail      Stage = "FINAL_FAIL"
)

// ErrInvalidStage is returned for a stage value outside the pipeline.
var ErrInvalidStage = errors.New("invalid stage")

type outcome int

const (
	outcomeNone outcome = iota
	outcomePass
	outcomeFail
)

// StageInfo is the static metadata attached to one stage.
type StageInfo struct {
	Stage       Stage   `json:"stage"`
	Label       string  `json:"label"`
	AllowedNext []Stage `json:"allowedNextStages"`
	Terminal    bool    `json:"terminal"`
	Pass        bool    `json:"pass"`
	Fail        bool    `json:"fail"`
}

type stageDef struct {
	stage   Stage
	label   string
	next    []Stage
	outcome outcome
}

// pipeline lists every stage in funnel order together with its allowed
// (from → to) edges. Terminal stages have no outgoing edges.
var pipeline = []stageDef{
	{StageApplied, "Applied", []Stage{StageDocumentReview}, outcomeNone},
	{StageDocumentReview, "Document review", []Stage{StageDocumentPass, StageDocumentFail}, outcomeNone},
	{StageDocumentPass, "Document passed", []Stage{StageCodingTest, StageInterview1}, outcomeNone},
	{StageDocumentFail, "Document failed", nil, outcomeFail},
	{StageCodingTest, "Coding test", []Stage{StageCodingPass, StageCodingFail}, outcomeNone},
	{StageCodingPass, "Coding test passed", []Stage{StageInterview1}, outcomeNone},
	{StageCodingFail, "Coding test failed", nil, outcomeFail},
	{StageInterview1, "First interview", []Stage{StageInterview1Pass, StageInterview1Fail}, outcomeNone},
	{StageInterview1Pass, "First interview passed", []Stage{StageInterview2, StageFinalReview}, outcomeNone},
	{StageInterview1Fail, "First interview failed", nil, outcomeFail},
	{StageInterview2, "Second interview", []Stage{StageInterview2Pass, StageInterview2Fail}, outcomeNone},
	{StageInterview2Pass, "Second interview passed", []Stage{StageFinalReview}, outcomeNone},
	{StageInterview2Fail, "Second interview failed", nil, outcomeFail},
	{StageFinalReview, "Final review", []Stage{StageFinalPass, StageFinalFail}, outcomeNone},
	{StageFinalPass, "Hired", nil, outcomePass},
	{StageFinalFail, "Final review failed", nil, outcomeFail},
}

var stageIndex = func() map[Stage]stageDef {
	m := make(map[Stage]stageDef, len(pipeline))
	for _, d := range pipeline {
		m[d.stage] = d
	}
	return m
}()

// ParseStage converts a raw string to a Stage, returning ErrInvalidStage for
// unknown values. Matching is case-sensitive.
func ParseStage(s string) (Stage, error) {
	if _, ok := stageIndex[Stage(s)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
	return Stage(s), nil
}

// Valid reports whether s belongs to the pipeline.
func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Lookup returns the metadata of s.
func Lookup(s Stage) (StageInfo, error) {
	d, ok := stageIndex[s]
	if !ok {
		return StageInfo{}, fmt.Errorf("%w: %q", ErrInvalidStage, string(s))
	}
	return d.info(), nil
}

// AllStages returns the metadata of every stage in funnel order.
func AllStages() []StageInfo {
	out := make([]StageInfo, 0, len(pipeline))
	for _, d := range pipeline {
		out = append(out, d.info())
	}
	return out
}

// AllowedNext returns a copy of the stages reachable from s in one step.
func AllowedNext(s Stage) []Stage {
	d, ok := stageIndex[s]
	if !ok {
		return nil
	}
	return append([]Stage{}, d.next...)
}

// CanTransition returns true when moving from → to is permitted by the
// stage graph.
func CanTransition(from, to Stage) bool {
	d, ok := stageIndex[from]
	if !ok {
		return false
	}
	for _, s := range d.next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true when s has no outgoing transitions.
func (s Stage) IsTerminal() bool {
	d, ok := stageIndex[s]
	return ok && len(d.next) == 0
}

// IsPass returns true for the successful terminal stage.
func (s Stage) IsPass() bool { return stageIndex[s].outcome == outcomePass }

// IsFail returns true for every failed terminal stage.
func (s Stage) IsFail() bool { return stageIndex[s].outcome == outcomeFail }

// Label returns the display label of s, or the raw value when unknown.
func (s Stage) Label() string {
	if d, ok := stageIndex[s]; ok {
		return d.label
	}
	return string(s)
}

func (d stageDef) info() StageInfo {
	next := append([]Stage{}, d.next...)
	return StageInfo{
		Stage:       d.stage,
		Label:       d.label,
		AllowedNext: next,
		Terminal:    len(d.next) == 0,
		Pass:        d.outcome == outcomePass,
		Fail:        d.outcome == outcomeFail,
	}
}
