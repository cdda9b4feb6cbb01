// Package billing computes which lines are eligible for invoicing. The
// external invoicing pipeline, the portal read model, and printed documents
// all call the same selector so the three surfaces can never disagree.
package billing

import (
	"time"

	"subport/internal/subscription/models"
)

// Invoiceable returns, in line order, the subset of lines eligible to be
// invoiced at asOf. Structural (section/note) lines pass through untouched;
// product lines must be not-removed, positive-quantity, inside their
// billing window, and flagged active for billing.
func Invoiceable(order *models.Order, asOf time.Time) []*models.Line {
	eligible := make([]*models.Line, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.BillableAt(asOf) {
			eligible = append(eligible, line)
		}
	}
	return eligible
}

// ReportLines filters lines for customer-facing order rendering and
// printed documents. Same predicate as Invoiceable so removed lines never
// surface anywhere.
func ReportLines(order *models.Order, asOf time.Time) []*models.Line {
	return Invoiceable(order, asOf)
}
