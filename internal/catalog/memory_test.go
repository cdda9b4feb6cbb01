package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "subport/pkg/domain"
	"subport/pkg/platform/sentinel"
)

func TestFindByID(t *testing.T) {
	c := NewInMemory()
	p := Product{ID: id.ProductID(uuid.New()), Name: "coffee", Sellable: true, SubscriptionOK: true}
	c.AddProduct(p)

	found, err := c.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, found.Name)

	_, err = c.FindByID(context.Background(), id.ProductID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAddableFilters(t *testing.T) {
	c := NewInMemory()
	company := id.CompanyID(uuid.New())
	other := id.CompanyID(uuid.New())

	ok := Product{ID: id.ProductID(uuid.New()), Name: "a ok", Sellable: true, SubscriptionOK: true}
	ownCompany := Product{ID: id.ProductID(uuid.New()), Name: "b own", Sellable: true, SubscriptionOK: true, CompanyID: &company}
	notSellable := Product{ID: id.ProductID(uuid.New()), Name: "c off-sale", SubscriptionOK: true}
	oneOff := Product{ID: id.ProductID(uuid.New()), Name: "d one-off", Sellable: true}
	foreign := Product{ID: id.ProductID(uuid.New()), Name: "e foreign", Sellable: true, SubscriptionOK: true, CompanyID: &other}
	for _, p := range []Product{ok, ownCompany, notSellable, oneOff, foreign} {
		c.AddProduct(p)
	}

	addable, err := c.Addable(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, addable, 2)
	assert.Equal(t, "a ok", addable[0].Name)
	assert.Equal(t, "b own", addable[1].Name)
}

func TestAddableOrderedAndCapped(t *testing.T) {
	c := NewInMemory()
	company := id.CompanyID(uuid.New())
	for i := 0; i < addableLimit+50; i++ {
		c.AddProduct(Product{
			ID:             id.ProductID(uuid.New()),
			Name:           fmt.Sprintf("product %04d", i),
			Sellable:       true,
			SubscriptionOK: true,
		})
	}

	addable, err := c.Addable(context.Background(), company)
	require.NoError(t, err)
	assert.Len(t, addable, addableLimit)
	for i := 1; i < len(addable); i++ {
		assert.LessOrEqual(t, addable[i-1].Name, addable[i].Name)
	}
}

func TestChangeableMonthlyFilter(t *testing.T) {
	c := NewInMemory()
	company := id.CompanyID(uuid.New())

	monthly1 := Plan{ID: id.PlanID(uuid.New()), Name: "a monthly", RuleType: "month", Interval: 1}
	monthly3 := Plan{ID: id.PlanID(uuid.New()), Name: "b quarterly", RuleType: "month", Interval: 3}
	monthly6 := Plan{ID: id.PlanID(uuid.New()), Name: "c half-yearly", RuleType: "month", Interval: 6}
	weekly := Plan{ID: id.PlanID(uuid.New()), Name: "d weekly", RuleType: "week", Interval: 1}
	for _, p := range []Plan{monthly1, monthly3, monthly6, weekly} {
		c.AddPlan(p)
	}

	plans, err := c.Changeable(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, monthly1.ID, plans[0].ID)
	assert.Equal(t, monthly3.ID, plans[1].ID)
}

func TestChangeableFallsBackToFullCatalog(t *testing.T) {
	c := NewInMemory()
	company := id.CompanyID(uuid.New())

	yearly := Plan{ID: id.PlanID(uuid.New()), Name: "yearly", RuleType: "year", Interval: 1}
	weekly := Plan{ID: id.PlanID(uuid.New()), Name: "weekly", RuleType: "week", Interval: 1}
	c.AddPlan(yearly)
	c.AddPlan(weekly)

	plans, err := c.Changeable(context.Background(), company)
	require.NoError(t, err)
	assert.Len(t, plans, 2, "no monthly plan matches, so the full catalog is offered")
}

func TestChangeablePlansWithoutShapeFieldsPass(t *testing.T) {
	c := NewInMemory()
	company := id.CompanyID(uuid.New())

	bare := Plan{ID: id.PlanID(uuid.New()), Name: "bare"}
	yearly := Plan{ID: id.PlanID(uuid.New()), Name: "yearly", RuleType: "year", Interval: 1}
	c.AddPlan(bare)
	c.AddPlan(yearly)

	plans, err := c.Changeable(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, plans, 1, "engines without rule fields are not penalized")
	assert.Equal(t, bare.ID, plans[0].ID)
}
