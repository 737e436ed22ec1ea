package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebridge/process-service/internal/process"
)

func TestPrintStagesTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStages(&buf, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 17)
	assert.True(t, strings.HasPrefix(lines[0], "STAGE"))
	assert.Contains(t, buf.String(), "DOCUMENT_PASS")
	assert.Contains(t, buf.String(), "CODING_TEST, INTERVIEW_1")
}

func TestPrintStagesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStages(&buf, true))

	var got []process.StageInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 16)
	assert.Equal(t, process.StageFinalPass, got[14].Stage)
	assert.True(t, got[14].Pass)
}
