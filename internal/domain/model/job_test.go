package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_UnmarshalText(t *testing.T) {
	t.Run("normalizes case and whitespace", func(t *testing.T) {
		var jt JobType
		require.NoError(t, jt.UnmarshalText([]byte("  WhatsApp_Chat ")))
		assert.Equal(t, JobTypeWhatsAppChat, jt)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		var jt JobType
		err := jt.UnmarshalText([]byte("report"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JobType")
	})
}

func TestJobType_Streaming(t *testing.T) {
	assert.True(t, JobTypeChat.Streaming())
	assert.True(t, JobTypeWhatsAppChat.Streaming())
	assert.True(t, JobTypePerformanceReport.Streaming())
	assert.False(t, JobTypeSOValidation.Streaming())

	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("performance_report")))
	assert.True(t, jt.Valid())
}

func TestJobStatus_CanTransition(t *testing.T) {
	all := []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusError}

	allowed := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing, JobStatusError},
		JobStatusProcessing: {JobStatusDone, JobStatusError},
		JobStatusDone:       nil,
		JobStatusError:      nil,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	t.Run("nothing returns to pending", func(t *testing.T) {
		for _, from := range all {
			assert.False(t, from.CanTransition(JobStatusPending), "%s -> pending", from)
		}
	})
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusDone.Terminal())
	assert.True(t, JobStatusError.Terminal())
}

func TestParseJobRef(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ref := JobRef{Type: JobTypeChat, ID: "J1"}
		parsed, err := ParseJobRef(ref.String())
		require.NoError(t, err)
		assert.Equal(t, ref, parsed)
	})

	t.Run("id may contain colons", func(t *testing.T) {
		parsed, err := ParseJobRef("chat:a:b")
		require.NoError(t, err)
		assert.Equal(t, "a:b", parsed.ID)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{"", "chat", "chat:", "nope:1"} {
			_, err := ParseJobRef(in)
			assert.Error(t, err, in)
		}
	})
}
