package grpcserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"corebridge/process-service/internal/process"
)

func TestCodecWritesProtobufWireFormat(t *testing.T) {
	raw, err := wireCodec{}.Marshal(&ProcessRef{ProcessID: 1 << 60})
	require.NoError(t, err)

	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 1<<60)
	assert.Equal(t, want, raw)

	empty, err := wireCodec{}.Marshal(&ProcessRef{})
	require.NoError(t, err)
	assert.Empty(t, empty, "zero fields are omitted")
}

func TestCodecInstanceTimestamps(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 123_000_000, time.UTC)
	prev := process.StageApplied
	in := &Process{Instance: process.Instance{
		ID: 1<<60 + 1, ApplicationID: 10, PostingID: 100, ApplicantID: 1000,
		CurrentStage: process.StageDocumentReview, PreviousStage: &prev,
		StageChangedAt: at, CreatedAt: at.Add(-time.Hour), UpdatedAt: at,
	}}
	raw, err := wireCodec{}.Marshal(in)
	require.NoError(t, err)

	// Field 7 is a google.protobuf.Timestamp readable by any protobuf runtime.
	var stageChanged []byte
	require.NoError(t, readFields(raw, func(f wireField) error {
		if f.num == 7 {
			stageChanged = f.bytes
		}
		return nil
	}))
	var ts timestamppb.Timestamp
	require.NoError(t, proto.Unmarshal(stageChanged, &ts))
	assert.True(t, ts.AsTime().Equal(at))

	var out Process
	require.NoError(t, wireCodec{}.Unmarshal(raw, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.CurrentStage, out.CurrentStage)
	require.NotNil(t, out.PreviousStage)
	assert.Equal(t, prev, *out.PreviousStage)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))

	in.PreviousStage = nil
	raw, err = wireCodec{}.Marshal(in)
	require.NoError(t, err)
	out = Process{}
	require.NoError(t, wireCodec{}.Unmarshal(raw, &out))
	assert.Nil(t, out.PreviousStage)
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	raw := protowire.AppendTag(nil, 15, protowire.BytesType)
	raw = protowire.AppendString(raw, "added later")
	raw = protowire.AppendTag(raw, 1, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 42)

	var ref ApplicationRef
	require.NoError(t, wireCodec{}.Unmarshal(raw, &ref))
	assert.Equal(t, int64(42), ref.ApplicationID)
}

func TestCodecAcceptsUnpackedIDs(t *testing.T) {
	var raw []byte
	for _, id := range []int64{100, 200} {
		raw = protowire.AppendTag(raw, 1, protowire.VarintType)
		raw = protowire.AppendVarint(raw, uint64(id))
	}
	var q PostingSetQuery
	require.NoError(t, wireCodec{}.Unmarshal(raw, &q))
	assert.Equal(t, []int64{100, 200}, q.PostingIDs)
}

func TestCodecRejectsBadInput(t *testing.T) {
	_, err := wireCodec{}.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, wireCodec{}.Unmarshal(nil, new(int)))

	truncated := protowire.AppendTag(nil, 1, protowire.BytesType)
	truncated = append(truncated, 5, 'a')
	assert.Error(t, wireCodec{}.Unmarshal(truncated, &PostingQuery{}))

	wrongType := protowire.AppendTag(nil, 1, protowire.BytesType)
	wrongType = protowire.AppendString(wrongType, "10")
	assert.Error(t, wireCodec{}.Unmarshal(wrongType, &ProcessRef{}))

	badUTF8 := protowire.AppendTag(nil, 2, protowire.BytesType)
	badUTF8 = protowire.AppendBytes(badUTF8, []byte{0xff})
	assert.Error(t, wireCodec{}.Unmarshal(badUTF8, &TransitionMessage{}))
}
