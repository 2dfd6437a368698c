package resilience

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/model"
)

func TestOpenCallLog_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	for i := 1; i <= 2; i++ {
		l, err := OpenCallLog(path, "run-x")
		require.NoError(t, err)
		l.Record(CallEvent{
			Provider:  ProviderImagery,
			Operation: "metadata",
			RecordID:  "rec-1",
			Attempt:   i,
			Code:      "OK",
			Outcome:   model.OutcomeOK,
			Duration:  12 * time.Millisecond,
		})
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "provider_call", ev["event"])
	assert.Equal(t, "run-x", ev["run_id"])
	assert.Equal(t, "imagery", ev["provider"])
	assert.EqualValues(t, 2, ev["attempt"])
	assert.EqualValues(t, 12, ev["duration_ms"])
}

func TestCallLog_NilIsNoop(t *testing.T) {
	var l *CallLog
	l.Record(CallEvent{Provider: "x"})
	assert.NoError(t, l.Close())
}
