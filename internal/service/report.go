package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const reportDateLayout = "2006-01-02"

// ErrGRNRepositoryRequired is returned when a PerformanceReporter has no repository.
var ErrGRNRepositoryRequired = errors.New("grn repository is required")

// PerformanceReporter streams a markdown performance report for one goods
// receipt note: delivery timeline, per-line fulfillment and quality, an
// executive summary and a final grade.
type PerformanceReporter struct {
	GRNs core.GRNRepository
	Now  func() time.Time
}

var _ core.Executor = PerformanceReporter{}

// Execute implements core.Executor. An unknown GRN fails the job with
// "GRN not found" after the report header has been emitted.
func (r PerformanceReporter) Execute(ctx context.Context, env model.Envelope, emit core.EmitFunc) error {
	if r.GRNs == nil {
		return ErrGRNRepositoryRequired
	}
	var payload model.PerformanceReportPayload
	if err := decodePayload(env.Payload, &payload); err != nil {
		return err
	}
	grnNo := strings.TrimSpace(payload.GRNNumber)

	w := reportWriter{emit: emit, p: message.NewPrinter(language.English)}
	w.line("# Performance Analytics Report\n")
	w.line("**GRN Number:** `%s`  \n", grnNo)
	w.line("**Generated on:** %s\n\n", r.now().Format(time.DateTime))
	w.line("---\n\n")
	if w.err != nil {
		return w.err
	}

	grn, err := r.GRNs.LoadGRN(ctx, grnNo)
	if err != nil {
		return err
	}

	t := summarizeGRN(grn)
	writeTimeline(&w, grn, t)
	writeItems(&w, grn.Items)
	writeSummary(&w, t)
	writeAssessment(&w, t)
	return w.err
}

func (r PerformanceReporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// reportWriter emits one chunk per line and keeps the first emit error.
type reportWriter struct {
	emit core.EmitFunc
	p    *message.Printer
	err  error
}

func (w *reportWriter) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	w.err = w.emit(w.p.Sprintf(format, args...))
}

type grnTotals struct {
	po, received, damaged float64
	onTime, late          bool
	delayDays             int
}

func summarizeGRN(grn model.GRN) grnTotals {
	var t grnTotals
	for _, it := range grn.Items {
		t.po += it.POQuantity
		t.received += it.ReceivedQuantity
		t.damaged += it.DamagedQuantity
	}
	if grn.ExpectedDeliveryDate != nil && grn.ActualReceiptDate != nil {
		exp, act := *grn.ExpectedDeliveryDate, *grn.ActualReceiptDate
		t.onTime = !act.After(exp)
		t.late = !t.onTime
		if t.late {
			t.delayDays = int(act.Sub(exp).Hours() / 24)
		}
	}
	return t
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

func formatDate(d *time.Time) string {
	if d == nil {
		return "n/a"
	}
	return d.Format(reportDateLayout)
}

func writeTimeline(w *reportWriter, grn model.GRN, t grnTotals) {
	var status string
	switch {
	case grn.ActualReceiptDate == nil:
		status = "Not yet received"
	case grn.ExpectedDeliveryDate == nil:
		status = "No expected date on record"
	case t.onTime:
		status = "On-time delivery"
	default:
		status = fmt.Sprintf("Delayed by %d days", t.delayDays)
	}
	w.line("### Delivery Timeline Analysis\n")
	w.line("| Metric | Details |\n| :--- | :--- |\n")
	w.line("| **Expected Date** | %s |\n", formatDate(grn.ExpectedDeliveryDate))
	w.line("| **Actual Receipt** | %s |\n", formatDate(grn.ActualReceiptDate))
	w.line("| **Delivery Status** | %s |\n\n", status)
}

func writeItems(w *reportWriter, items []model.GRNItem) {
	w.line("### Item-level Breakdown\n")
	w.line("| # | PO Qty | Rec. Qty | Dmg. Qty | Fulfillment | Quality |\n")
	w.line("| :--- | :--- | :--- | :--- | :--- | :--- |\n")
	for i, it := range items {
		quality := "OK"
		if it.DamagedQuantity != 0 {
			quality = "DAMAGED"
		}
		w.line("| %d | %.2f | %.2f | %.2f | %.1f%% | %s |\n",
			i+1, it.POQuantity, it.ReceivedQuantity, it.DamagedQuantity,
			percent(it.ReceivedQuantity, it.POQuantity), quality)
	}
}

func writeSummary(w *reportWriter, t grnTotals) {
	var points []string
	if t.po == 0 {
		points = append(points, "- **Alert:** No PO quantity found for this order.")
	}
	if t.damaged > 0 {
		points = append(points, w.p.Sprintf("- **Quality Issue:** %.2f items were reported as damaged.", t.damaged))
	}
	switch {
	case t.received < t.po:
		points = append(points, w.p.Sprintf("- **Shortage:** Order is short by %.2f units (%.1f%% fulfillment).",
			t.po-t.received, percent(t.received, t.po)))
	case t.received > t.po:
		points = append(points, w.p.Sprintf("- **Excess:** Received %.2f additional units beyond PO.", t.received-t.po))
	default:
		points = append(points, "- **Quantity:** All ordered units were received.")
	}
	if t.late {
		points = append(points, "- **Late Arrival:** The shipment arrived after the expected delivery date.")
	}

	w.line("\n### Executive Summary\n")
	w.line("%s\n\n", strings.Join(points, "\n"))
}

func writeAssessment(w *reportWriter, t grnTotals) {
	w.line("### Final Assessment\n")
	switch {
	case t.onTime && t.damaged == 0 && t.received == t.po:
		w.line("> **EXCELLENT:** This order meets all performance and quality standards.\n")
	case t.onTime && t.damaged == 0 && t.received > 0:
		w.line("> **GOOD:** The order was on time and undamaged, though quantities vary from PO.\n")
	default:
		w.line("> **NEEDS REVIEW:** Issues with timing, quantity, or quality were detected. Follow-up recommended.\n")
	}
}
