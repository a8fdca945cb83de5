package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/service"
)

type fakeValidator struct {
	submitted []model.ValidationRequest
	submitErr error
	results   map[string]service.BatchResults
}

func (f *fakeValidator) Submit(_ context.Context, req model.ValidationRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "SO-12", nil
}

func (f *fakeValidator) Results(_ context.Context, id string) (service.BatchResults, error) {
	res, ok := f.results[id]
	if !ok {
		return service.BatchResults{}, apperrors.NotFound("Results not found or expired.")
	}
	return res, nil
}

func newValidationRouter(v *fakeValidator) http.Handler {
	return NewRouter(RouterServices{Validation: v})
}

func TestValidationSubmit(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.ValidationItem
	}{
		{
			name: "items",
			body: `{"items":[{"product_id":101,"quantity":2,"weight":12.5}]}`,
			want: []model.ValidationItem{{ProductID: 101, Quantity: 2, Weight: 12.5}},
		},
		{
			name: "parallel arrays",
			body: `{"product_ids":[101,404],"quantities":[2,1],"weights":[12.5,3]}`,
			want: []model.ValidationItem{
				{ProductID: 101, Quantity: 2, Weight: 12.5},
				{ProductID: 404, Quantity: 1, Weight: 3},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeValidator{}
			w := httptest.NewRecorder()
			newValidationRouter(v).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/so/validate", strings.NewReader(tt.body)))

			require.Equal(t, http.StatusAccepted, w.Code)
			assert.JSONEq(t, `{"request_id":"SO-12","status":"queued"}`, w.Body.String())
			require.Len(t, v.submitted, 1)
			assert.Equal(t, tt.want, v.submitted[0].Items)
		})
	}
}

func TestValidationSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		status    int
	}{
		{name: "length mismatch", body: `{"product_ids":[1,2],"quantities":[1],"weights":[1,2]}`, status: http.StatusBadRequest},
		{name: "both shapes", body: `{"items":[{"product_id":1}],"product_ids":[1],"quantities":[1],"weights":[1]}`, status: http.StatusBadRequest},
		{name: "service validation", body: `{"items":[]}`, submitErr: apperrors.ValidationField("Items", "Items is required"), status: http.StatusBadRequest},
		{name: "store down", body: `{"items":[{"product_id":1}]}`, submitErr: errors.New("dial tcp: refused"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeValidator{submitErr: tt.submitErr}
			w := httptest.NewRecorder()
			newValidationRouter(v).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/so/validate", strings.NewReader(tt.body)))
			require.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestValidationResults(t *testing.T) {
	v := &fakeValidator{results: map[string]service.BatchResults{
		"SO-1": {
			RequestID: "SO-1",
			Status:    model.BatchStatusDone,
			Source:    service.SourceDatabase,
			Results: []model.ValidationResult{
				{ProductID: 101, Quantity: 2, UserWeight: 12.5, Status: model.ValidationValid, Message: "ok"},
			},
		},
		"SO-2": {RequestID: "SO-2", Status: model.BatchStatusProcessing},
	}}
	h := newValidationRouter(v)

	t.Run("done", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/so/results/SO-1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var got service.BatchResults
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, v.results["SO-1"], got)
	})

	t.Run("processing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/so/results/SO-2", nil))
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `{"request_id":"SO-2","status":"processing"}`, w.Body.String())
	})

	t.Run("unknown", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/so/results/SO-9", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"not_found","message":"Results not found or expired."}`, w.Body.String())
	})
}
