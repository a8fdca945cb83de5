package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/testutil"
)

func TestValidationResultRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	repo := NewValidationResultRepo(db)
	ctx := context.Background()

	first, err := repo.NextRequestID(ctx, "SO")
	require.NoError(t, err)
	second, err := repo.NextRequestID(ctx, "SO")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Regexp(t, `^SO-\d+$`, first)

	results := []model.ValidationResult{
		{ProductID: 1, Quantity: 2, UserWeight: 10, ActualWeight: testutil.Float64Ptr(10), Sheets: testutil.IntPtr(500), Status: model.ValidationValid, Message: "ok"},
		{ProductID: 2, Quantity: 1, UserWeight: 3, Status: model.ValidationError, Message: "boom"},
		{ProductID: 3, Quantity: 4, UserWeight: 8, GSM: testutil.Float64Ptr(80), Status: model.ValidationInvalid, Message: "too light"},
	}
	require.NoError(t, repo.InsertBatch(ctx, first, results))

	got, err := repo.ListByRequestID(ctx, first)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range results {
		assert.Equal(t, results[i].ProductID, got[i].ProductID)
		assert.Equal(t, results[i].Status, got[i].Status)
		assert.Equal(t, first, got[i].RequestID)
	}
	assert.Equal(t, 500, *got[0].Sheets)
	assert.Nil(t, got[1].ActualWeight)

	empty, err := repo.ListByRequestID(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// A rejected row aborts the whole batch.
	bad := []model.ValidationResult{
		{ProductID: 9, Status: model.ValidationValid},
		{ProductID: 10, Status: "bogus"},
	}
	err = repo.InsertBatch(ctx, second, bad)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	empty, err = repo.ListByRequestID(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestItemCatalogAndMessageRepos_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO item_master (product_id, item_name, gsm, number_of_sheets, item_gross_weight, created_at)
		VALUES (42, 'old', 70, 400, 9.5, now() - interval '1 day'),
		       (42, 'A4 Copier', 80, 500, 12.5, now())`)
	require.NoError(t, err)

	catalog := NewItemCatalogRepo(db)
	item, err := catalog.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "A4 Copier", item.Name)
	assert.InDelta(t, 12.5, *item.ItemGrossWeight, 0.0001)
	assert.Equal(t, 500, *item.Sheets)

	_, err = catalog.Lookup(ctx, 404)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "Product ID 404 not found.", err.Error())

	var convID, msgID, waID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, agent) VALUES (1, 'assistant') RETURNING id`).Scan(&convID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, role) VALUES ($1, 'assistant') RETURNING id`, convID).Scan(&msgID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO whatsapp_messages (from_number, body) VALUES ('+15550100', 'hi') RETURNING id`).Scan(&waID))

	messages := NewMessageRepo(db)
	require.NoError(t, messages.UpdateChatContent(ctx, msgID, "Hello world", map[string]any{"processed": true}))
	var content, meta string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT content, metadata::text FROM messages WHERE id = $1`, msgID).Scan(&content, &meta))
	assert.Equal(t, "Hello world", content)
	assert.JSONEq(t, `{"processed":true}`, meta)

	err = messages.UpdateChatContent(ctx, msgID+1000, "x", nil)
	assert.True(t, apperrors.IsNotFound(err))

	from, err := messages.UpdateWhatsAppBody(ctx, waID, "reply")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", from)
}
