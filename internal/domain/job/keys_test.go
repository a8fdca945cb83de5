package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/jobstream/internal/domain/model"
)

func TestNamespace_Keys(t *testing.T) {
	ref := model.JobRef{Type: model.JobTypeChat, ID: "J1"}

	t.Run("default entity", func(t *testing.T) {
		ns := DefaultNamespace()
		assert.Equal(t, "message:{chat:J1}:state", ns.StateKey(ref))
		assert.Equal(t, "message:{chat:J1}:stream", ns.StreamKey(ref))
		assert.Equal(t, "message:{chat:J1}:lease", ns.LeaseKey(ref))
	})

	t.Run("empty entity falls back", func(t *testing.T) {
		ns := Namespace{Entity: "  "}
		assert.Equal(t, "message:{chat:J1}:state", ns.StateKey(ref))
	})

	t.Run("job keys share a hash tag", func(t *testing.T) {
		ns := DefaultNamespace()
		for _, key := range []string{ns.StateKey(ref), ns.StreamKey(ref), ns.LeaseKey(ref)} {
			assert.Contains(t, key, "{chat:J1}")
		}
	})

	t.Run("types do not collide", func(t *testing.T) {
		ns := DefaultNamespace()
		other := model.JobRef{Type: model.JobTypeWhatsAppChat, ID: "J1"}
		assert.NotEqual(t, ns.StreamKey(ref), ns.StreamKey(other))
	})
}

func TestValidationKeys(t *testing.T) {
	assert.Equal(t, "so_validation:input:SO-1001", ValidationInputKey("SO-1001"))
	assert.Equal(t, "so_validation:result:SO-1001", ValidationResultKey("SO-1001"))
}
