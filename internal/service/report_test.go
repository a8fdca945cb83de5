package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/mocks"
	"github.com/target/jobstream/internal/testutil"
	"go.uber.org/mock/gomock"
)

func reportEnvelope(grn string) model.Envelope {
	return model.Envelope{
		JobID:   "R1",
		Type:    model.JobTypePerformanceReport,
		Payload: json.RawMessage(`{"grn_number":"` + grn + `"}`),
	}
}

func day(s string) *time.Time {
	d, err := time.Parse(reportDateLayout, s)
	if err != nil {
		panic(err)
	}
	return &d
}

func runReport(t *testing.T, repo *mocks.MockGRNRepository, env model.Envelope) ([]string, error) {
	t.Helper()
	reporter := PerformanceReporter{GRNs: repo, Now: testutil.TestTime}
	var chunks []string
	err := reporter.Execute(context.Background(), env, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	return chunks, err
}

func TestPerformanceReporter_LateShortAndDamaged(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGRNRepository(ctrl)
	repo.EXPECT().LoadGRN(gomock.Any(), "GRN-9").Return(model.GRN{
		Number:               "GRN-9",
		ExpectedDeliveryDate: day("2024-03-01"),
		ActualReceiptDate:    day("2024-03-04"),
		Items: []model.GRNItem{
			{POQuantity: 1200, ReceivedQuantity: 1000, DamagedQuantity: 5},
			{POQuantity: 50, ReceivedQuantity: 50},
		},
	}, nil)

	chunks, err := runReport(t, repo, reportEnvelope("GRN-9"))
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "\n"), "every chunk ends a markdown line: %q", c)
	}

	report := strings.Join(chunks, "")
	assert.True(t, strings.HasPrefix(report, "# Performance Analytics Report\n**GRN Number:** `GRN-9`  \n"))
	assert.Contains(t, report, "**Generated on:** 2024-01-01 12:00:00\n")
	assert.Contains(t, report, "| **Expected Date** | 2024-03-01 |\n")
	assert.Contains(t, report, "| **Delivery Status** | Delayed by 3 days |\n")
	assert.Contains(t, report, "| 1 | 1,200.00 | 1,000.00 | 5.00 | 83.3% | DAMAGED |\n")
	assert.Contains(t, report, "| 2 | 50.00 | 50.00 | 0.00 | 100.0% | OK |\n")
	assert.Contains(t, report, "- **Quality Issue:** 5.00 items were reported as damaged.\n")
	assert.Contains(t, report, "- **Shortage:** Order is short by 200.00 units (84.0% fulfillment).\n")
	assert.Contains(t, report, "- **Late Arrival:**")
	assert.True(t, strings.HasSuffix(report, "### Final Assessment\n> **NEEDS REVIEW:** Issues with timing, quantity, or quality were detected. Follow-up recommended.\n"))
}

func TestPerformanceReporter_Assessment(t *testing.T) {
	tests := []struct {
		name  string
		items []model.GRNItem
		want  string
		point string
	}{
		{
			name:  "exact and on time",
			items: []model.GRNItem{{POQuantity: 10, ReceivedQuantity: 10}},
			want:  "> **EXCELLENT:**",
			point: "- **Quantity:** All ordered units were received.",
		},
		{
			name:  "over delivered",
			items: []model.GRNItem{{POQuantity: 10, ReceivedQuantity: 12}},
			want:  "> **GOOD:**",
			point: "- **Excess:** Received 2.00 additional units beyond PO.",
		},
		{
			name:  "no purchase order quantity",
			items: nil,
			want:  "> **NEEDS REVIEW:**",
			point: "- **Alert:** No PO quantity found for this order.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockGRNRepository(ctrl)
			repo.EXPECT().LoadGRN(gomock.Any(), "GRN-1").Return(model.GRN{
				Number:               "GRN-1",
				ExpectedDeliveryDate: day("2024-03-01"),
				ActualReceiptDate:    day("2024-03-01"),
				Items:                tt.items,
			}, nil)

			chunks, err := runReport(t, repo, reportEnvelope("GRN-1"))
			require.NoError(t, err)
			report := strings.Join(chunks, "")
			assert.Contains(t, report, "| **Delivery Status** | On-time delivery |")
			assert.Contains(t, report, tt.point)
			assert.Contains(t, report, tt.want)
			assert.NotContains(t, report, "Late Arrival")
		})
	}
}

func TestPerformanceReporter_PendingReceiptNeedsReview(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGRNRepository(ctrl)
	repo.EXPECT().LoadGRN(gomock.Any(), "GRN-2").Return(model.GRN{
		Number:               "GRN-2",
		ExpectedDeliveryDate: day("2024-03-01"),
		Items:                []model.GRNItem{{POQuantity: 5, ReceivedQuantity: 5}},
	}, nil)

	chunks, err := runReport(t, repo, reportEnvelope("GRN-2"))
	require.NoError(t, err)
	report := strings.Join(chunks, "")
	assert.Contains(t, report, "| **Actual Receipt** | n/a |")
	assert.Contains(t, report, "| **Delivery Status** | Not yet received |")
	assert.Contains(t, report, "> **NEEDS REVIEW:**")
}

func TestPerformanceReporter_UnknownGRN(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGRNRepository(ctrl)
	repo.EXPECT().LoadGRN(gomock.Any(), "GRN-X").Return(model.GRN{}, apperrors.NotFound("GRN not found"))

	chunks, err := runReport(t, repo, reportEnvelope(" GRN-X "))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "GRN not found", err.Error())
	require.Len(t, chunks, 4, "header is streamed before the lookup")
	assert.Equal(t, "---\n\n", chunks[3])
}

func TestPerformanceReporter_RejectsBadPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGRNRepository(ctrl)

	env := reportEnvelope("")
	chunks, err := runReport(t, repo, env)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, chunks)

	_, err = PerformanceReporter{}.Execute(context.Background(), env, nil)
	require.ErrorIs(t, err, ErrGRNRepositoryRequired)
}

func TestPerformanceReporter_StopsOnEmitError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGRNRepository(ctrl)
	fenced := errors.New("fenced")

	calls := 0
	err := PerformanceReporter{GRNs: repo}.Execute(context.Background(), reportEnvelope("GRN-1"), func(string) error {
		calls++
		return fenced
	})
	require.ErrorIs(t, err, fenced)
	assert.Equal(t, 1, calls)
}
