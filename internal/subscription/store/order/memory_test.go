package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
	"subport/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) newOrder() *models.Order {
	order, err := models.NewOrder(
		id.OrderID(uuid.New()),
		id.PartnerID(uuid.New()),
		id.PartnerID(uuid.New()),
		s.now,
	)
	s.Require().NoError(err)
	order.SubscriptionStatus = "in_progress"
	return order
}

func (s *MemoryStoreSuite) newProductLine(order *models.Order, qty float64) *models.Line {
	line, err := models.NewLine(
		id.LineID(uuid.New()),
		order.ID,
		id.ProductID(uuid.New()),
		"coffee beans 1kg",
		qty,
		id.SourcePortal,
		id.UserID(uuid.New()),
		s.now,
	)
	s.Require().NoError(err)
	order.Lines = append(order.Lines, line)
	return line
}

func (s *MemoryStoreSuite) TestCreateAndFind() {
	order := s.newOrder()
	s.Require().NoError(s.store.Create(s.ctx, order))

	found, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, found.ID)
	s.Equal("in_progress", found.SubscriptionStatus)
}

func (s *MemoryStoreSuite) TestCreateDuplicateConflicts() {
	order := s.newOrder()
	s.Require().NoError(s.store.Create(s.ctx, order))

	err := s.store.Create(s.ctx, order)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestFindUnknownOrder() {
	_, err := s.store.FindByID(s.ctx, id.OrderID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestFindReturnsClone() {
	order := s.newOrder()
	s.newProductLine(order, 2)
	s.Require().NoError(s.store.Create(s.ctx, order))

	found, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	found.Lines[0].Quantity = 99

	again, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(float64(2), again.Lines[0].Quantity)
}

func (s *MemoryStoreSuite) TestExecuteAppliesMutation() {
	order := s.newOrder()
	line := s.newProductLine(order, 2)
	s.Require().NoError(s.store.Create(s.ctx, order))

	updated, err := s.store.Execute(s.ctx, order.ID,
		func(o *models.Order) error { return nil },
		func(_ context.Context, o *models.Order) error {
			o.Line(line.ID).Quantity = 5
			return nil
		},
	)
	s.Require().NoError(err)
	s.Equal(float64(5), updated.Line(line.ID).Quantity)

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(float64(5), stored.Line(line.ID).Quantity)
}

func (s *MemoryStoreSuite) TestExecuteValidateFailureLeavesOrderUntouched() {
	order := s.newOrder()
	line := s.newProductLine(order, 2)
	s.Require().NoError(s.store.Create(s.ctx, order))

	denied := dErrors.New(dErrors.CodeForbidden, "not yours")
	_, err := s.store.Execute(s.ctx, order.ID,
		func(o *models.Order) error { return denied },
		func(_ context.Context, o *models.Order) error {
			o.Line(line.ID).Quantity = 0
			return nil
		},
	)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(float64(2), stored.Line(line.ID).Quantity)
}

func (s *MemoryStoreSuite) TestExecuteMutateFailureLeavesOrderUntouched() {
	order := s.newOrder()
	line := s.newProductLine(order, 2)
	s.Require().NoError(s.store.Create(s.ctx, order))

	boom := errors.New("downstream failed")
	_, err := s.store.Execute(s.ctx, order.ID,
		nil,
		func(_ context.Context, o *models.Order) error {
			o.Line(line.ID).Quantity = 0
			return boom
		},
	)
	s.ErrorIs(err, boom)

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(float64(2), stored.Line(line.ID).Quantity)
}

func (s *MemoryStoreSuite) TestExecuteUnknownOrder() {
	_, err := s.store.Execute(s.ctx, id.OrderID(uuid.New()), nil, nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestDeleteLineInterceptsConfirmedOrders() {
	order := s.newOrder()
	line := s.newProductLine(order, 3)
	s.Require().NoError(s.store.Create(s.ctx, order))

	actor := id.UserID(uuid.New())
	outcome, err := s.store.DeleteLine(s.ctx, order.ID, line.ID, actor)
	s.Require().NoError(err)
	s.Equal(models.DeleteIntercepted, outcome)

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	kept := stored.Line(line.ID)
	s.Require().NotNil(kept, "line must survive as a soft-removed tombstone")
	s.True(kept.Removed)
	s.Equal(float64(0), kept.Quantity)
	s.Equal(actor, kept.RemovedBy)
	s.Equal("delete intercepted", kept.RemoveReason)
}

func (s *MemoryStoreSuite) TestDeleteLineHardDeletesOnDraftOrders() {
	order := s.newOrder()
	order.State = models.StateDraft
	line := s.newProductLine(order, 1)
	s.Require().NoError(s.store.Create(s.ctx, order))

	outcome, err := s.store.DeleteLine(s.ctx, order.ID, line.ID, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Equal(models.DeleteHard, outcome)

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Nil(stored.Line(line.ID))
}

func (s *MemoryStoreSuite) TestDeleteLineHardDeletesStructuralLines() {
	order := s.newOrder()
	structural, err := models.NewStructuralLine(id.LineID(uuid.New()), order.ID, models.DisplaySection, "extras", s.now)
	s.Require().NoError(err)
	order.Lines = append(order.Lines, structural)
	s.Require().NoError(s.store.Create(s.ctx, order))

	outcome, err := s.store.DeleteLine(s.ctx, order.ID, structural.ID, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Equal(models.DeleteHard, outcome)

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Nil(stored.Line(structural.ID))
}

func (s *MemoryStoreSuite) TestDeleteLineNoopWhenAlreadyRemoved() {
	order := s.newOrder()
	line := s.newProductLine(order, 2)
	line.ApplySoftRemove(id.UserID(uuid.New()), "customer request", id.SourcePortal, s.now)
	s.Require().NoError(s.store.Create(s.ctx, order))

	outcome, err := s.store.DeleteLine(s.ctx, order.ID, line.ID, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Equal(models.DeleteNoop, outcome)
	s.True(outcome.Intercepted())

	stored, err := s.store.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("customer request", stored.Line(line.ID).RemoveReason)
}

func (s *MemoryStoreSuite) TestDeleteLineUnknownLine() {
	order := s.newOrder()
	s.Require().NoError(s.store.Create(s.ctx, order))

	_, err := s.store.DeleteLine(s.ctx, order.ID, id.LineID(uuid.New()), id.UserID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
