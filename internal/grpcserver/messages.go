package grpcserver

import "corebridge/process-service/internal/process"

// Field numbers below are the wire contract of corebridge.process.v1; never
// renumber a field, only add new ones.

// CreateProcessRequest creates the instance of an application. PostingID and
// ApplicantID may be left zero to resolve them through the application
// directory.
//
//	1 application_id, 2 posting_id, 3 applicant_id
type CreateProcessRequest struct {
	ApplicationID int64
	PostingID     int64
	ApplicantID   int64
}

func (m *CreateProcessRequest) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.ApplicationID)
	b = appendInt64(b, 2, m.PostingID)
	return appendInt64(b, 3, m.ApplicantID)
}

func (m *CreateProcessRequest) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		switch f.num {
		case 1:
			m.ApplicationID, err = f.int64()
		case 2:
			m.PostingID, err = f.int64()
		case 3:
			m.ApplicantID, err = f.int64()
		}
		return err
	})
}

// ProcessRef addresses an instance by id.
//
//	1 process_id
type ProcessRef struct {
	ProcessID int64
}

func (m *ProcessRef) appendWire(b []byte) []byte { return appendInt64(b, 1, m.ProcessID) }

func (m *ProcessRef) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.ProcessID, err = f.int64()
		}
		return err
	})
}

// ApplicationRef addresses an instance by application id.
//
//	1 application_id
type ApplicationRef struct {
	ApplicationID int64
}

func (m *ApplicationRef) appendWire(b []byte) []byte { return appendInt64(b, 1, m.ApplicationID) }

func (m *ApplicationRef) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.ApplicationID, err = f.int64()
		}
		return err
	})
}

// ApplicantRef addresses an applicant.
//
//	1 applicant_id
type ApplicantRef struct {
	ApplicantID int64
}

func (m *ApplicantRef) appendWire(b []byte) []byte { return appendInt64(b, 1, m.ApplicantID) }

func (m *ApplicantRef) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.ApplicantID, err = f.int64()
		}
		return err
	})
}

// TransitionMessage moves the instance with ProcessID.
//
//	1 process_id, 2 to_stage, 3 reason, 4 note
type TransitionMessage struct {
	ProcessID int64
	process.TransitionBody
}

func (m *TransitionMessage) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.ProcessID)
	return appendTransitionBody(b, &m.TransitionBody)
}

func (m *TransitionMessage) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.ProcessID, err = f.int64()
			return err
		}
		return readTransitionBody(f, &m.TransitionBody)
	})
}

// TransitionByApplicationMessage moves the instance of ApplicationID.
//
//	1 application_id, 2 to_stage, 3 reason, 4 note
type TransitionByApplicationMessage struct {
	ApplicationID int64
	process.TransitionBody
}

func (m *TransitionByApplicationMessage) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.ApplicationID)
	return appendTransitionBody(b, &m.TransitionBody)
}

func (m *TransitionByApplicationMessage) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.ApplicationID, err = f.int64()
			return err
		}
		return readTransitionBody(f, &m.TransitionBody)
	})
}

func appendTransitionBody(b []byte, body *process.TransitionBody) []byte {
	b = appendString(b, 2, body.ToStage)
	b = appendString(b, 3, body.Reason)
	return appendString(b, 4, body.Note)
}

func readTransitionBody(f wireField, body *process.TransitionBody) (err error) {
	switch f.num {
	case 2:
		body.ToStage, err = f.string()
	case 3:
		body.Reason, err = f.string()
	case 4:
		body.Note, err = f.string()
	}
	return err
}

// PostingQuery selects a posting's instances, optionally at one stage.
//
//	1 posting_id, 2 stage
type PostingQuery struct {
	PostingID int64
	Stage     string
}

func (m *PostingQuery) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.PostingID)
	return appendString(b, 2, m.Stage)
}

func (m *PostingQuery) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		switch f.num {
		case 1:
			m.PostingID, err = f.int64()
		case 2:
			m.Stage, err = f.string()
		}
		return err
	})
}

// PostingSetQuery selects several postings for one combined funnel.
//
//	1 posting_ids (packed)
type PostingSetQuery struct {
	PostingIDs []int64
}

func (m *PostingSetQuery) appendWire(b []byte) []byte { return appendPackedInt64s(b, 1, m.PostingIDs) }

func (m *PostingSetQuery) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		if f.num == 1 {
			m.PostingIDs, err = f.int64s(m.PostingIDs)
		}
		return err
	})
}

// Empty is used where an RPC has no payload.
type Empty struct{}

func (*Empty) appendWire(b []byte) []byte { return b }

func (*Empty) readWire(b []byte) error {
	return readFields(b, func(wireField) error { return nil })
}

// ─── Responses ───────────────────────────────────────────────────────────────

// Process carries one workflow instance.
//
//	1 process_id, 2 application_id, 3 posting_id, 4 applicant_id,
//	5 current_stage, 6 previous_stage, 7 stage_changed_at,
//	8 created_at, 9 updated_at
type Process struct {
	process.Instance
}

func (m *Process) appendWire(b []byte) []byte { return appendInstance(b, &m.Instance) }

func (m *Process) readWire(b []byte) error { return readInstance(b, &m.Instance) }

func appendInstance(b []byte, inst *process.Instance) []byte {
	b = appendInt64(b, 1, inst.ID)
	b = appendInt64(b, 2, inst.ApplicationID)
	b = appendInt64(b, 3, inst.PostingID)
	b = appendInt64(b, 4, inst.ApplicantID)
	b = appendString(b, 5, string(inst.CurrentStage))
	if inst.PreviousStage != nil {
		b = appendString(b, 6, string(*inst.PreviousStage))
	}
	b = appendTime(b, 7, inst.StageChangedAt)
	b = appendTime(b, 8, inst.CreatedAt)
	return appendTime(b, 9, inst.UpdatedAt)
}

func readInstance(b []byte, inst *process.Instance) error {
	return readFields(b, func(f wireField) (err error) {
		switch f.num {
		case 1:
			inst.ID, err = f.int64()
		case 2:
			inst.ApplicationID, err = f.int64()
		case 3:
			inst.PostingID, err = f.int64()
		case 4:
			inst.ApplicantID, err = f.int64()
		case 5:
			var s string
			s, err = f.string()
			inst.CurrentStage = process.Stage(s)
		case 6:
			var s string
			s, err = f.string()
			prev := process.Stage(s)
			inst.PreviousStage = &prev
		case 7:
			inst.StageChangedAt, err = f.time()
		case 8:
			inst.CreatedAt, err = f.time()
		case 9:
			inst.UpdatedAt, err = f.time()
		}
		return err
	})
}

// InstanceList wraps a list of instances.
//
//	1 repeated Process processes
type InstanceList struct {
	Processes []process.Instance
}

func (m *InstanceList) appendWire(b []byte) []byte {
	for i := range m.Processes {
		b = appendEmbedded(b, 1, appendInstance(nil, &m.Processes[i]))
	}
	return b
}

func (m *InstanceList) readWire(b []byte) error {
	return readFields(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		sub, err := f.embedded()
		if err != nil {
			return err
		}
		var inst process.Instance
		if err := readInstance(sub, &inst); err != nil {
			return err
		}
		m.Processes = append(m.Processes, inst)
		return nil
	})
}

// HistoryList wraps a transition log.
//
//	1 repeated HistoryEntry entries:
//	  1 history_id, 2 process_id, 3 application_id, 4 from_stage,
//	  5 to_stage, 6 changed_by, 7 reason, 8 note, 9 created_at
type HistoryList struct {
	Entries []process.HistoryEntry
}

func (m *HistoryList) appendWire(b []byte) []byte {
	for i := range m.Entries {
		b = appendEmbedded(b, 1, appendHistoryEntry(nil, &m.Entries[i]))
	}
	return b
}

func (m *HistoryList) readWire(b []byte) error {
	return readFields(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		sub, err := f.embedded()
		if err != nil {
			return err
		}
		var e process.HistoryEntry
		if err := readHistoryEntry(sub, &e); err != nil {
			return err
		}
		m.Entries = append(m.Entries, e)
		return nil
	})
}

func appendHistoryEntry(b []byte, e *process.HistoryEntry) []byte {
	b = appendInt64(b, 1, e.ID)
	b = appendInt64(b, 2, e.ProcessID)
	b = appendInt64(b, 3, e.ApplicationID)
	if e.FromStage != nil {
		b = appendString(b, 4, string(*e.FromStage))
	}
	b = appendString(b, 5, string(e.ToStage))
	if e.ActorID != nil {
		b = appendInt64(b, 6, *e.ActorID)
	}
	b = appendString(b, 7, e.Reason)
	b = appendString(b, 8, e.Note)
	return appendTime(b, 9, e.CreatedAt)
}

func readHistoryEntry(b []byte, e *process.HistoryEntry) error {
	return readFields(b, func(f wireField) (err error) {
		switch f.num {
		case 1:
			e.ID, err = f.int64()
		case 2:
			e.ProcessID, err = f.int64()
		case 3:
			e.ApplicationID, err = f.int64()
		case 4:
			var s string
			s, err = f.string()
			from := process.Stage(s)
			e.FromStage = &from
		case 5:
			var s string
			s, err = f.string()
			e.ToStage = process.Stage(s)
		case 6:
			var actor int64
			actor, err = f.int64()
			e.ActorID = &actor
		case 7:
			e.Reason, err = f.string()
		case 8:
			e.Note, err = f.string()
		case 9:
			e.CreatedAt, err = f.time()
		}
		return err
	})
}

// FunnelStats carries one stats summary.
//
//	1 total, 2 pending, 3 in_review, 4 interviewing, 5 passed, 6 failed,
//	7 pass_rate (double)
type FunnelStats struct {
	process.Stats
}

func (m *FunnelStats) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.Total)
	b = appendInt64(b, 2, m.Pending)
	b = appendInt64(b, 3, m.InReview)
	b = appendInt64(b, 4, m.Interviewing)
	b = appendInt64(b, 5, m.Passed)
	b = appendInt64(b, 6, m.Failed)
	return appendDouble(b, 7, m.PassRate)
}

func (m *FunnelStats) readWire(b []byte) error {
	return readFields(b, func(f wireField) (err error) {
		switch f.num {
		case 1:
			m.Total, err = f.int64()
		case 2:
			m.Pending, err = f.int64()
		case 3:
			m.InReview, err = f.int64()
		case 4:
			m.Interviewing, err = f.int64()
		case 5:
			m.Passed, err = f.int64()
		case 6:
			m.Failed, err = f.int64()
		case 7:
			m.PassRate, err = f.double()
		}
		return err
	})
}

// StageList wraps the stage metadata.
//
//	1 repeated StageInfo stages:
//	  1 stage, 2 label, 3 repeated allowed_next, 4 terminal, 5 pass, 6 fail
type StageList struct {
	Stages []process.StageInfo
}

func (m *StageList) appendWire(b []byte) []byte {
	for _, info := range m.Stages {
		var sub []byte
		sub = appendString(sub, 1, string(info.Stage))
		sub = appendString(sub, 2, info.Label)
		for _, next := range info.AllowedNext {
			sub = appendString(sub, 3, string(next))
		}
		sub = appendBool(sub, 4, info.Terminal)
		sub = appendBool(sub, 5, info.Pass)
		sub = appendBool(sub, 6, info.Fail)
		b = appendEmbedded(b, 1, sub)
	}
	return b
}

func (m *StageList) readWire(b []byte) error {
	return readFields(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		sub, err := f.embedded()
		if err != nil {
			return err
		}
		var info process.StageInfo
		err = readFields(sub, func(f wireField) (err error) {
			var s string
			switch f.num {
			case 1:
				s, err = f.string()
				info.Stage = process.Stage(s)
			case 2:
				info.Label, err = f.string()
			case 3:
				s, err = f.string()
				info.AllowedNext = append(info.AllowedNext, process.Stage(s))
			case 4:
				info.Terminal, err = f.bool()
			case 5:
				info.Pass, err = f.bool()
			case 6:
				info.Fail, err = f.bool()
			}
			return err
		})
		if err != nil {
			return err
		}
		m.Stages = append(m.Stages, info)
		return nil
	})
}
