package types_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/pkg/types"
)

func TestParseRole(t *testing.T) {
	cases := map[string]struct {
		want types.Role
		ok   bool
	}{
		"user":        {types.RoleUser, true},
		" Assistant ": {types.RoleAssistant, true},
		"SYSTEM":      {types.RoleSystem, true},
		"tool":        {"tool", false},
		"":            {"", false},
	}
	for in, tc := range cases {
		got, ok := types.ParseRole(in)
		assert.Equal(t, tc.ok, ok, "ParseRole(%q)", in)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestMemoryValidate(t *testing.T) {
	now := time.Now()
	valid := types.Memory{ID: "m1", Sentence: "likes tea", Embedding: []float64{1, 0}, CreatedAt: now}
	require.NoError(t, valid.Validate())

	noEmbedding := valid
	noEmbedding.Embedding = nil
	err := noEmbedding.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalid))

	blank := valid
	blank.Sentence = "   "
	assert.ErrorIs(t, blank.Validate(), types.ErrInvalid)

	var nilMemory *types.Memory
	assert.ErrorIs(t, nilMemory.Validate(), types.ErrInvalid)
}

func TestValidateRejectsOutOfRangeTimes(t *testing.T) {
	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	assert.True(t, types.InTimeRange(types.MaxTime))
	assert.True(t, types.InTimeRange(types.MinTime))
	assert.False(t, types.InTimeRange(types.MaxTime.Add(time.Nanosecond)))
	assert.False(t, types.InTimeRange(types.MinTime.Add(-time.Nanosecond)))
	assert.False(t, types.InTimeRange(far))

	r := &types.Reminder{ID: "r1", When: far, Text: "later"}
	assert.ErrorIs(t, r.Validate(), types.ErrInvalid)

	m := &types.Memory{ID: "m1", Sentence: "s", Embedding: []float64{1}, CreatedAt: far}
	assert.ErrorIs(t, m.Validate(), types.ErrInvalid)

	msg := types.Message{Role: types.RoleUser, Content: "hi", Timestamp: far}
	assert.ErrorIs(t, msg.Validate(), types.ErrInvalid)

	th := &types.ChatThread{ID: "t1", CreatedAt: now, UpdatedAt: far}
	assert.ErrorIs(t, th.Validate(), types.ErrInvalid)
}

func TestMemoryCloneIsDeep(t *testing.T) {
	m := &types.Memory{ID: "m1", Sentence: "s", Embedding: []float64{1, 2}, CreatedAt: time.Now()}
	c := m.Clone()
	c.Embedding[0] = 9
	assert.Equal(t, 1.0, m.Embedding[0])
}

func TestThreadSummary(t *testing.T) {
	th := &types.ChatThread{}
	assert.Equal(t, "Empty conversation", th.Summary())

	th.Messages = []types.Message{{Role: types.RoleUser, Content: "hello"}}
	assert.Equal(t, "hello...", th.Summary())

	long := strings.Repeat("é", 80)
	th.Messages[0].Content = long
	assert.Equal(t, strings.Repeat("é", 50)+"...", th.Summary())
}

func TestThreadValidateRejectsOutOfOrderMessages(t *testing.T) {
	now := time.Now()
	th := &types.ChatThread{
		ID:        "t1",
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "a", Timestamp: now.Add(time.Minute)},
			{Role: types.RoleAssistant, Content: "b", Timestamp: now},
		},
	}
	assert.ErrorIs(t, th.Validate(), types.ErrInvalid)

	th.Messages[1].Timestamp = now.Add(time.Minute)
	assert.NoError(t, th.Validate())

	th.Messages[1].Role = "robot"
	assert.ErrorIs(t, th.Validate(), types.ErrInvalid)
}

func TestNormalizeTags(t *testing.T) {
	got := types.NormalizeTags([]string{"work", " home ", "", "work", "errands"})
	assert.Equal(t, []string{"errands", "home", "work"}, got)
	assert.Empty(t, types.NormalizeTags(nil))
}

func TestReminderAlert(t *testing.T) {
	when := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	r := &types.Reminder{ID: "r1", When: when, Text: "take pills", Critical: true}
	require.NoError(t, r.Validate())

	a := r.Alert()
	assert.Equal(t, types.Alert{ID: "r1", When: when, Title: "Reminder", Body: "take pills", Critical: true}, a)

	r.Text = ""
	assert.ErrorIs(t, r.Validate(), types.ErrInvalid)
}
