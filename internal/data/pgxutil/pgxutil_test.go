package pgxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyRowsWithoutRowsSkipsDatabase(t *testing.T) {
	// A nil pool would panic if CopyRows tried to pin a connection.
	assert.NoError(t, CopyRows(context.Background(), nil, "t", []string{"a"}, nil))
}

func TestShortCopyErrorMessage(t *testing.T) {
	err := &ShortCopyError{Table: "so_validation_analysis", Copied: 2, Expected: 3}
	assert.Equal(t, "copy into so_validation_analysis: copied 2 of 3 rows", err.Error())
}
