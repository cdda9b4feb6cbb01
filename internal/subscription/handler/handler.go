// Package handler exposes the subscription portal and backend HTTP routes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subport/internal/catalog"
	"subport/internal/platform/middleware"
	"subport/internal/subscription/models"
	"subport/internal/subscription/service"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
	"subport/pkg/platform/httputil"
	"subport/pkg/requestcontext"
)

// Service defines the subscription operations the transport layer needs.
type Service interface {
	GetManageView(ctx context.Context, caller id.Caller, orderID id.OrderID) (*service.ManageView, error)
	InvoiceableLines(ctx context.Context, caller id.Caller, orderID id.OrderID, asOf time.Time) ([]*models.Line, error)
	AddableProducts(ctx context.Context, caller id.Caller, orderID id.OrderID) ([]catalog.Product, error)
	ChangeablePlans(ctx context.Context, caller id.Caller, orderID id.OrderID) ([]catalog.Plan, error)

	ChangeAddress(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ChangeAddressRequest) (*models.Order, error)
	PushNextDate(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.PushNextDateRequest) (*models.Order, error)
	AddProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.AddProductRequest) (*models.Order, error)
	RemoveProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.RemoveProductRequest) (*models.Order, error)
	Pause(ctx context.Context, caller id.Caller, orderID id.OrderID) (*models.Order, error)
	Resume(ctx context.Context, caller id.Caller, orderID id.OrderID) (*models.Order, error)
	ChangeInterval(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ChangeIntervalRequest) (*models.Order, error)
	ReplaceProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ReplaceProductRequest) (*models.Order, error)

	EndLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID, endDate time.Time, note string) (*models.Order, error)
	ActivateLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID, startDate time.Time, note string) (*models.Order, error)
	DeleteLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID) (bool, error)
	SetPermissions(ctx context.Context, caller id.Caller, orderID id.OrderID, perms models.PortalPermissions) (*models.Order, error)
}

// Handler handles subscription portal and backend endpoints.
type Handler struct {
	logger           *slog.Logger
	subscriptions    Service
	jwtValidator     middleware.JWTValidator
	backendTokenHash string
}

// New creates a subscription Handler.
func New(
	subscriptions Service,
	logger *slog.Logger,
	jwtValidator middleware.JWTValidator,
	backendTokenHash string) *Handler {
	return &Handler{
		logger:           logger,
		subscriptions:    subscriptions,
		jwtValidator:     jwtValidator,
		backendTokenHash: backendTokenHash,
	}
}

// Register registers the subscription routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	portal := chi.NewRouter()
	portal.Use(middleware.Recovery(h.logger))
	portal.Use(middleware.RequestID)
	portal.Use(middleware.RequestTime)
	portal.Use(middleware.Logger(h.logger))
	portal.Use(middleware.Timeout(30 * time.Second))
	portal.Use(middleware.ContentTypeJSON)
	portal.Use(middleware.Authenticate(h.jwtValidator, h.logger))

	portal.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/manage", h.handleManageView)
		r.Get("/lines/invoiceable", h.handleInvoiceableLines)
		r.Get("/products/addable", h.handleAddableProducts)
		r.Get("/plans", h.handleChangeablePlans)

		r.Post("/change_address", h.handleChangeAddress)
		r.Post("/push_next_date", h.handlePushNextDate)
		r.Post("/add_product", h.handleAddProduct)
		r.Post("/lines/{lineID}/remove", h.handleRemoveProduct)
		r.Post("/pause", h.handlePause)
		r.Post("/resume", h.handleResume)
		r.Post("/change_interval", h.handleChangeInterval)
		r.Post("/replace_product", h.handleReplaceProduct)
	})
	r.Mount("/", portal)

	backend := chi.NewRouter()
	backend.Use(middleware.Recovery(h.logger))
	backend.Use(middleware.RequestID)
	backend.Use(middleware.RequestTime)
	backend.Use(middleware.Logger(h.logger))
	backend.Use(middleware.Timeout(30 * time.Second))
	backend.Use(middleware.ContentTypeJSON)
	backend.Use(middleware.RequireBackendToken(h.backendTokenHash, h.logger))

	backend.Route("/orders/{orderID}", func(r chi.Router) {
		r.Post("/lines/{lineID}/end", h.handleEndLine)
		r.Post("/lines/{lineID}/activate", h.handleActivateLine)
		r.Delete("/lines/{lineID}", h.handleDeleteLine)
		r.Put("/permissions", h.handleSetPermissions)
	})
	r.Mount("/backend", backend)
}

// writeOrderError renders a subscription operation failure. Ownership
// failures surface as not-found so callers cannot probe which order IDs
// exist.
func (h *Handler) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	switch code {
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "subscription operation failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	default:
		h.logger.WarnContext(ctx, "subscription operation rejected",
			"code", string(code),
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	if code == dErrors.CodeForbidden {
		err = dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	httputil.WriteError(w, err)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (id.OrderID, bool) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.OrderID{}, false
	}
	return orderID, true
}

func (h *Handler) lineID(w http.ResponseWriter, r *http.Request) (id.LineID, bool) {
	lineID, err := id.ParseLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.LineID{}, false
	}
	return lineID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) handleManageView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	view, err := h.subscriptions.GetManageView(ctx, requestcontext.Caller(ctx), orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toManageViewResponse(view))
}

func (h *Handler) handleInvoiceableLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	asOf := requestcontext.Now(ctx)
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "as_of must be a YYYY-MM-DD date"))
			return
		}
		asOf = parsed
	}

	lines, err := h.subscriptions.InvoiceableLines(ctx, requestcontext.Caller(ctx), orderID, asOf)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLinesResponse(lines))
}

func (h *Handler) handleAddableProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	products, err := h.subscriptions.AddableProducts(ctx, requestcontext.Caller(ctx), orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProductsResponse(products))
}

func (h *Handler) handleChangeablePlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	plans, err := h.subscriptions.ChangeablePlans(ctx, requestcontext.Caller(ctx), orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPlansResponse(plans))
}

func (h *Handler) handleChangeAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire changeAddressRequest
	if !decodeBody(w, r, &wire) {
		return
	}
	req, err := wire.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.ChangeAddress(ctx, requestcontext.Caller(ctx), orderID, req)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handlePushNextDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire pushNextDateRequest
	if !decodeBody(w, r, &wire) {
		return
	}

	order, err := h.subscriptions.PushNextDate(ctx, requestcontext.Caller(ctx), orderID, &models.PushNextDateRequest{
		NextDate: wire.NextDate,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire addProductRequest
	if !decodeBody(w, r, &wire) {
		return
	}
	req, err := wire.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.AddProduct(ctx, requestcontext.Caller(ctx), orderID, req)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleRemoveProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	wire := removeProductRequest{}
	if r.ContentLength > 0 && !decodeBody(w, r, &wire) {
		return
	}

	order, err := h.subscriptions.RemoveProduct(ctx, requestcontext.Caller(ctx), orderID, &models.RemoveProductRequest{
		LineID: lineID,
		Reason: wire.Reason,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.subscriptions.Pause(ctx, requestcontext.Caller(ctx), orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.subscriptions.Resume(ctx, requestcontext.Caller(ctx), orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleChangeInterval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire changeIntervalRequest
	if !decodeBody(w, r, &wire) {
		return
	}
	req, err := wire.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.ChangeInterval(ctx, requestcontext.Caller(ctx), orderID, req)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleReplaceProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire replaceProductRequest
	if !decodeBody(w, r, &wire) {
		return
	}
	req, err := wire.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.ReplaceProduct(ctx, requestcontext.Caller(ctx), orderID, req)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleEndLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	wire := lineWindowRequest{}
	if r.ContentLength > 0 && !decodeBody(w, r, &wire) {
		return
	}
	effective, err := wire.effectiveDate(requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.EndLine(ctx, requestcontext.Caller(ctx), orderID, lineID, effective, wire.Note)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleActivateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	wire := lineWindowRequest{}
	if r.ContentLength > 0 && !decodeBody(w, r, &wire) {
		return
	}
	effective, err := wire.effectiveDate(requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.subscriptions.ActivateLine(ctx, requestcontext.Caller(ctx), orderID, lineID, effective, wire.Note)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	intercepted, err := h.subscriptions.DeleteLine(ctx, requestcontext.Caller(ctx), orderID, lineID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deleteLineResponse{Intercepted: intercepted})
}

func (h *Handler) handleSetPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var wire permissionsPayload
	if !decodeBody(w, r, &wire) {
		return
	}

	order, err := h.subscriptions.SetPermissions(ctx, requestcontext.Caller(ctx), orderID, wire.toModel())
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}
