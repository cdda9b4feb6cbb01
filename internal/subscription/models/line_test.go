package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

var lineNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func productLine(t *testing.T, qty float64) *Line {
	t.Helper()
	line, err := NewLine(
		id.LineID(uuid.New()),
		id.OrderID(uuid.New()),
		id.ProductID(uuid.New()),
		"coffee beans 1kg",
		qty,
		id.SourcePortal,
		id.UserID(uuid.New()),
		lineNow,
	)
	require.NoError(t, err)
	return line
}

func TestNewLineValidation(t *testing.T) {
	_, err := NewLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), id.ProductID(uuid.New()), "x", 0, id.SourcePortal, id.UserID(uuid.New()), lineNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), id.ProductID{}, "x", 1, id.SourcePortal, id.UserID(uuid.New()), lineNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestSoftRemoveStampsMetadata(t *testing.T) {
	line := productLine(t, 3)
	actor := id.UserID(uuid.New())

	require.NoError(t, line.CanSoftRemove())
	line.ApplySoftRemove(actor, "customer request", id.SourcePortal, lineNow)

	assert.True(t, line.Removed)
	assert.Equal(t, float64(0), line.Quantity)
	assert.Equal(t, actor, line.RemovedBy)
	assert.Equal(t, "customer request", line.RemoveReason)
	assert.Equal(t, lineNow, *line.RemovedAt)
	assert.True(t, line.IsRemovedNoop())
}

func TestSoftRemoveRejectsStructuralAndDelivered(t *testing.T) {
	section, err := NewStructuralLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), DisplaySection, "extras", lineNow)
	require.NoError(t, err)
	assert.True(t, dErrors.HasCode(section.CanSoftRemove(), dErrors.CodeBusinessRule))

	delivered := productLine(t, 2)
	delivered.Delivered = 1
	assert.True(t, dErrors.HasCode(delivered.CanSoftRemove(), dErrors.CodeBusinessRule))
}

func TestIsRemovedForBillingDefensive(t *testing.T) {
	line := productLine(t, 2)
	assert.False(t, line.IsRemovedForBilling())

	// Zero quantity without the flag still counts as removed.
	line.Quantity = 0
	assert.True(t, line.IsRemovedForBilling())

	section, err := NewStructuralLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), DisplayNote, "note", lineNow)
	require.NoError(t, err)
	assert.False(t, section.IsRemovedForBilling(), "structural lines are never removed")
}

func TestBillableAt(t *testing.T) {
	asOf := lineNow

	t.Run("structural always passes", func(t *testing.T) {
		section, err := NewStructuralLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), DisplaySection, "extras", lineNow)
		require.NoError(t, err)
		assert.True(t, section.BillableAt(asOf))
	})

	t.Run("active product line passes", func(t *testing.T) {
		assert.True(t, productLine(t, 1).BillableAt(asOf))
	})

	t.Run("removed line fails", func(t *testing.T) {
		line := productLine(t, 1)
		line.ApplySoftRemove(id.UserID(uuid.New()), "", id.SourcePortal, lineNow)
		assert.False(t, line.BillableAt(asOf))
	})

	t.Run("window bounds are start-inclusive end-exclusive", func(t *testing.T) {
		line := productLine(t, 1)
		start := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
		line.StartDate = &start
		line.EndDate = &end

		assert.False(t, line.BillableAt(start.Add(-time.Hour)))
		assert.True(t, line.BillableAt(start))
		assert.True(t, line.BillableAt(end.Add(-time.Hour)))
		assert.False(t, line.BillableAt(end))
	})

	t.Run("inactive billing flag fails", func(t *testing.T) {
		line := productLine(t, 1)
		line.ActiveForBilling = false
		assert.False(t, line.BillableAt(asOf))
	})
}

func TestEndAndActivateWindow(t *testing.T) {
	line := productLine(t, 2)
	actor := id.UserID(uuid.New())

	require.NoError(t, line.CanEnd())
	line.ApplyEnd(time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC), "season end", actor, id.SourceBackend, lineNow)
	assert.False(t, line.ActiveForBilling)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), *line.EndDate, "end dates are stored date-only")
	assert.Equal(t, float64(2), line.Quantity, "ending a window never touches quantity")

	line.ApplyActivate(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC), "season start", actor, id.SourceBackend, lineNow)
	assert.True(t, line.ActiveForBilling)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *line.StartDate)
	assert.Nil(t, line.EndDate)
}

func TestCanHardDelete(t *testing.T) {
	section, err := NewStructuralLine(id.LineID(uuid.New()), id.OrderID(uuid.New()), DisplaySection, "extras", lineNow)
	require.NoError(t, err)
	assert.True(t, section.CanHardDelete(StateConfirmed))

	line := productLine(t, 1)
	assert.True(t, line.CanHardDelete(StateDraft))
	assert.False(t, line.CanHardDelete(StateConfirmed))
	assert.False(t, line.CanHardDelete(StateDone))
}
