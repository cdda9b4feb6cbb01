package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"subport/internal/audit"
	auditmem "subport/internal/audit/store/memory"
	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/jwttoken"
	"subport/internal/subscription/handler"
	"subport/internal/subscription/models"
	"subport/internal/subscription/schema"
	"subport/internal/subscription/service"
	"subport/internal/subscription/store/order"
	"subport/internal/subscription/store/submission"
	id "subport/pkg/domain"
	"subport/pkg/testutil"
)

const backendToken = "backend-operator-secret"

type env struct {
	store      *order.InMemory
	catalog    *catalog.InMemory
	directory  *directory.InMemory
	auditStore *auditmem.Store
	jwt        *jwttoken.Service
	router     chi.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:      order.NewInMemory(),
		catalog:    catalog.NewInMemory(),
		directory:  directory.NewInMemory(),
		auditStore: auditmem.New(),
		jwt:        jwttoken.NewService("test-signing-key", "subport", "subport-portal"),
	}
	svc := service.New(e.store, e.catalog, e.catalog, e.directory,
		service.WithAuditPublisher(audit.NewPublisher(e.auditStore)),
		service.WithSubmissionGuard(submission.NewInMemory(time.Minute)),
	)

	hash, err := bcrypt.GenerateFromPassword([]byte(backendToken), bcrypt.MinCost)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.New(svc, logger, jwttoken.NewServiceAdapter(e.jwt), string(hash))

	e.router = chi.NewRouter()
	h.Register(e.router)
	return e
}

// newSubscription seeds a confirmed subscription order with a status-based
// engine and returns it with its owning portal caller.
func (e *env) newSubscription(t *testing.T) (*models.Order, id.Caller) {
	t.Helper()
	now := time.Now().UTC()
	o, err := models.NewOrder(
		id.OrderID(uuid.New()),
		id.PartnerID(uuid.New()),
		id.PartnerID(uuid.New()),
		now,
	)
	require.NoError(t, err)
	o.CompanyID = id.CompanyID(uuid.New())
	o.SubscriptionStatus = "in_progress"
	o.Engine = schema.Descriptor{
		Fields:   map[string]schema.FieldKind{"recurring_next_date": schema.FieldDate},
		HasPlan:  true,
		Statuses: []string{"in_progress", "paused", "closed"},
	}
	require.NoError(t, e.store.Create(context.Background(), o))

	caller := testutil.PortalCaller(id.UserID(uuid.New()), o.CommercialGroup)
	return o, caller
}

func (e *env) seedProduct(name string) catalog.Product {
	p := catalog.Product{
		ID:             id.ProductID(uuid.New()),
		Name:           name,
		Sellable:       true,
		SubscriptionOK: true,
	}
	e.catalog.AddProduct(p)
	return p
}

func (e *env) addLine(t *testing.T, o *models.Order, product catalog.Product, qty float64) id.LineID {
	t.Helper()
	var lineID id.LineID
	_, err := e.store.Execute(context.Background(), o.ID, nil, func(_ context.Context, current *models.Order) error {
		line, lineErr := models.NewLine(id.LineID(uuid.New()), o.ID, product.ID, product.Name, qty, id.SourceBackend, id.UserID(uuid.New()), time.Now().UTC())
		if lineErr != nil {
			return lineErr
		}
		current.Lines = append(current.Lines, line)
		lineID = line.ID
		return nil
	})
	require.NoError(t, err)
	return lineID
}

type orderBody struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	SubscriptionStatus string `json:"subscription_status"`
	PlanID             string `json:"plan_id"`
	Lines              []struct {
		ID           string  `json:"id"`
		ProductID    string  `json:"product_id"`
		Quantity     float64 `json:"quantity"`
		Removed      bool    `json:"removed"`
		RemoveReason string  `json:"remove_reason"`
	} `json:"lines"`
}

func TestManageViewWithBearerToken(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	e.seedProduct("coffee beans 1kg")

	token, err := e.jwt.GeneratePortalToken(
		uuid.UUID(caller.UserID),
		uuid.UUID(caller.PartnerID),
		uuid.UUID(caller.CommercialGroup),
		time.Hour,
	)
	require.NoError(t, err)

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String()+"/manage")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusOK(t, rr)
	view := testutil.UnmarshalResponse[struct {
		Order    orderBody `json:"order"`
		Addable  []any     `json:"addable_products"`
		CanPause bool      `json:"can_pause"`
	}](t, rr)
	assert.Equal(t, o.ID.String(), view.Order.ID)
	assert.Len(t, view.Addable, 1)
	assert.True(t, view.CanPause)
}

func TestManageViewAnonymousUnauthorized(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String()+"/manage")
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestManageViewInvalidTokenRejected(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)

	req := testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String()+"/manage")
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestForeignOwnerReadsAsNotFound(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)
	stranger := testutil.PortalCaller(id.UserID(uuid.New()), id.PartnerID(uuid.New()))

	req := testutil.WithCaller(testutil.NewRequest(t, http.MethodGet, "/orders/"+o.ID.String()+"/manage"), stranger)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestUnknownOrderNotFound(t *testing.T) {
	e := newEnv(t)
	_, caller := e.newSubscription(t)

	req := testutil.WithCaller(testutil.NewRequest(t, http.MethodGet, "/orders/"+uuid.NewString()+"/manage"), caller)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestMalformedOrderIDRejected(t *testing.T) {
	e := newEnv(t)
	_, caller := e.newSubscription(t)

	req := testutil.WithCaller(testutil.NewRequest(t, http.MethodGet, "/orders/not-a-uuid/manage"), caller)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestAddProduct(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/add_product", map[string]any{
		"product_id": product.ID.String(),
		"quantity":   2,
	})
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))

	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[orderBody](t, rr)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, product.ID.String(), body.Lines[0].ProductID)
	assert.Equal(t, float64(2), body.Lines[0].Quantity)
}

func TestAddProductInvalidBody(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/orders/"+o.ID.String()+"/add_product", "{not json")
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestRemoveLine(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")
	lineID := e.addLine(t, o, product, 3)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/orders/"+o.ID.String()+"/lines/"+lineID.String()+"/remove",
		map[string]any{"reason": "no longer needed"},
	)
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))

	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[orderBody](t, rr)
	require.Len(t, body.Lines, 1)
	assert.True(t, body.Lines[0].Removed)
	assert.Equal(t, float64(0), body.Lines[0].Quantity)
	assert.Equal(t, "no longer needed", body.Lines[0].RemoveReason)
}

func TestPushNextDate(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	future := time.Now().UTC().Add(72 * time.Hour).Format("2006-01-02")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/push_next_date",
		map[string]any{"next_date": future})
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusOK(t, rr)

	past := time.Now().UTC().Add(-72 * time.Hour).Format("2006-01-02")
	req = testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/push_next_date",
		map[string]any{"next_date": past})
	rr = testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestPauseAndResume(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)

	req := testutil.NewRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/pause")
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[orderBody](t, rr)
	assert.Equal(t, "paused", body.SubscriptionStatus)

	req = testutil.NewRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/resume")
	rr = testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusOK(t, rr)
	body = testutil.UnmarshalResponse[orderBody](t, rr)
	assert.Equal(t, "in_progress", body.SubscriptionStatus)
}

func TestChangeInterval(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	monthly := catalog.Plan{ID: id.PlanID(uuid.New()), Name: "monthly", RuleType: "month", Interval: 1}
	yearly := catalog.Plan{ID: id.PlanID(uuid.New()), Name: "yearly", RuleType: "year", Interval: 1}
	e.catalog.AddPlan(monthly)
	e.catalog.AddPlan(yearly)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/change_interval",
		map[string]any{"plan_id": monthly.ID.String()})
	rr := testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[orderBody](t, rr)
	assert.Equal(t, monthly.ID.String(), body.PlanID)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/change_interval",
		map[string]any{"plan_id": yearly.ID.String()})
	rr = testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestBackendRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")
	lineID := e.addLine(t, o, product, 1)

	req := testutil.NewRequest(t, http.MethodDelete,
		"/backend/orders/"+o.ID.String()+"/lines/"+lineID.String())
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	req = testutil.NewRequest(t, http.MethodDelete,
		"/backend/orders/"+o.ID.String()+"/lines/"+lineID.String())
	req.Header.Set("X-Backend-Token", "wrong-token")
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestBackendDeleteIntercepted(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")
	lineID := e.addLine(t, o, product, 1)

	req := testutil.NewRequest(t, http.MethodDelete,
		"/backend/orders/"+o.ID.String()+"/lines/"+lineID.String())
	req.Header.Set("X-Backend-Token", backendToken)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusOK(t, rr)
	body := testutil.UnmarshalResponse[struct {
		Intercepted bool `json:"intercepted"`
	}](t, rr)
	assert.True(t, body.Intercepted, "a confirmed order tombstones instead of deleting")
}

func TestPermissionToggleBlocksPortal(t *testing.T) {
	e := newEnv(t)
	o, caller := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")

	perms := map[string]any{
		"allow_address_change":  true,
		"allow_date_push":       true,
		"allow_add_product":     false,
		"allow_remove_product":  true,
		"allow_pause":           true,
		"allow_interval_change": true,
		"allow_product_change":  true,
	}
	req := testutil.NewJSONRequest(t, http.MethodPut, "/backend/orders/"+o.ID.String()+"/permissions", perms)
	req.Header.Set("X-Backend-Token", backendToken)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+o.ID.String()+"/add_product", map[string]any{
		"product_id": product.ID.String(),
		"quantity":   1,
	})
	rr = testutil.DoRequest(e.router, testutil.WithCaller(req, caller))
	testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "user_error")
}

func TestBackendEndLineClosesWindow(t *testing.T) {
	e := newEnv(t)
	o, _ := e.newSubscription(t)
	product := e.seedProduct("coffee beans 1kg")
	lineID := e.addLine(t, o, product, 2)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/backend/orders/"+o.ID.String()+"/lines/"+lineID.String()+"/end",
		map[string]any{"note": "contract ended"},
	)
	req.Header.Set("X-Backend-Token", backendToken)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatusOK(t, rr)
	stored, err := e.store.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	line := stored.Line(lineID)
	require.NotNil(t, line)
	assert.NotNil(t, line.EndDate)
}
