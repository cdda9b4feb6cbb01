package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"subport/internal/subscription/models"
	"subport/internal/subscription/schema"
	id "subport/pkg/domain"
	"subport/pkg/platform/sentinel"
	txcontext "subport/pkg/platform/tx"
)

// PostgresStore persists order aggregates in postgres. Execute opens a
// transaction and locks the order row with SELECT ... FOR UPDATE for the
// duration of validate+mutate, serializing concurrent operations on the
// same order while leaving other orders untouched.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// engineDoc is the JSONB shape of the engine capability descriptor.
type engineDoc struct {
	Fields   map[string]int    `json:"fields,omitempty"`
	HasPlan  bool              `json:"has_plan,omitempty"`
	Actions  map[string]string `json:"actions,omitempty"`
	Stages   []schema.Stage    `json:"stages,omitempty"`
	Statuses []string          `json:"statuses,omitempty"`
}

func encodeEngine(d schema.Descriptor) ([]byte, error) {
	doc := engineDoc{
		HasPlan:  d.HasPlan,
		Actions:  d.Actions,
		Stages:   d.Stages,
		Statuses: d.Statuses,
	}
	if len(d.Fields) > 0 {
		doc.Fields = make(map[string]int, len(d.Fields))
		for name, kind := range d.Fields {
			doc.Fields[name] = int(kind)
		}
	}
	return json.Marshal(doc)
}

func decodeEngine(raw []byte) (schema.Descriptor, error) {
	var doc engineDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return schema.Descriptor{}, err
	}
	d := schema.Descriptor{
		HasPlan:  doc.HasPlan,
		Actions:  doc.Actions,
		Stages:   doc.Stages,
		Statuses: doc.Statuses,
	}
	if len(doc.Fields) > 0 {
		d.Fields = make(map[string]schema.FieldKind, len(doc.Fields))
		for name, kind := range doc.Fields {
			d.Fields[name] = schema.FieldKind(kind)
		}
	}
	return d, nil
}

func (s *PostgresStore) Create(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertOrder(ctx, tx, order); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return err
	}
	for position, line := range order.Lines {
		if err := upsertLine(ctx, tx, line, position); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	return loadOrder(ctx, s.db, orderID, false)
}

func (s *PostgresStore) Execute(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(context.Context, *models.Order) error) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(order); err != nil {
			return nil, err
		}
	}
	txCtx := txcontext.WithTx(ctx, tx)
	if mutate != nil {
		if err := mutate(txCtx, order); err != nil {
			return nil, err
		}
	}

	if err := updateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	for position, line := range order.Lines {
		if err := upsertLine(ctx, tx, line, position); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order transaction: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) DeleteLine(ctx context.Context, orderID id.OrderID, lineID id.LineID, actor id.UserID) (models.DeleteOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.DeleteHard, fmt.Errorf("begin delete line: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return models.DeleteHard, err
	}
	line := order.Line(lineID)
	if line == nil {
		return models.DeleteHard, sentinel.ErrNotFound
	}

	outcome := models.DeleteHard
	switch {
	case line.CanHardDelete(order.State):
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE id = $1`, uuid.UUID(lineID)); err != nil {
			return models.DeleteHard, fmt.Errorf("delete line: %w", err)
		}
	case line.IsRemovedNoop():
		outcome = models.DeleteNoop
	default:
		if err := line.CanSoftRemove(); err != nil {
			return models.DeleteHard, err
		}
		line.ApplySoftRemove(actor, "delete intercepted", id.SourceBackend, nowFromContext(ctx))
		position := 0
		for i, l := range order.Lines {
			if l.ID == lineID {
				position = i
			}
		}
		if err := upsertLine(ctx, tx, line, position); err != nil {
			return models.DeleteHard, err
		}
		outcome = models.DeleteIntercepted
	}

	if err := tx.Commit(); err != nil {
		return models.DeleteHard, fmt.Errorf("commit delete line: %w", err)
	}
	return outcome, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrder(ctx context.Context, q queryer, orderID id.OrderID, forUpdate bool) (*models.Order, error) {
	query := `
		SELECT id, customer_id, commercial_group, company_id, state,
		       subscription_status, stage_id, plan_id, subscription_flag,
		       shipping_address_id, invoice_address_id,
		       next_dates, engine, permissions, created_at, updated_at
		FROM orders WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		order         models.Order
		rawID         uuid.UUID
		customerID    uuid.UUID
		commercial    uuid.UUID
		companyID     uuid.UUID
		planID        sql.Null[uuid.UUID]
		shippingID    sql.Null[uuid.UUID]
		invoiceID     sql.Null[uuid.UUID]
		nextDatesJSON []byte
		engineJSON    []byte
		permsJSON     []byte
	)
	err := q.QueryRowContext(ctx, query, uuid.UUID(orderID)).Scan(
		&rawID, &customerID, &commercial, &companyID, &order.State,
		&order.SubscriptionStatus, &order.StageID, &planID, &order.SubscriptionFlag,
		&shippingID, &invoiceID,
		&nextDatesJSON, &engineJSON, &permsJSON, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	order.ID = id.OrderID(rawID)
	order.CustomerID = id.PartnerID(customerID)
	order.CommercialGroup = id.PartnerID(commercial)
	order.CompanyID = id.CompanyID(companyID)
	if planID.Valid {
		pid := id.PlanID(planID.V)
		order.PlanID = &pid
	}
	if shippingID.Valid {
		order.ShippingAddressID = id.PartnerID(shippingID.V)
	}
	if invoiceID.Valid {
		order.InvoiceAddressID = id.PartnerID(invoiceID.V)
	}
	if len(nextDatesJSON) > 0 {
		if err := json.Unmarshal(nextDatesJSON, &order.NextDates); err != nil {
			return nil, fmt.Errorf("decode next dates: %w", err)
		}
	}
	if len(engineJSON) > 0 {
		engine, err := decodeEngine(engineJSON)
		if err != nil {
			return nil, fmt.Errorf("decode engine descriptor: %w", err)
		}
		order.Engine = engine
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &order.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}

	lines, err := loadLines(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func loadLines(ctx context.Context, q queryer, orderID id.OrderID) ([]*models.Line, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, display, name, quantity, delivered,
		       removed, removed_at, removed_by, remove_reason,
		       active_for_billing, start_date, end_date,
		       change_source, change_note, changed_by, changed_at, created_at
		FROM order_lines WHERE order_id = $1
		ORDER BY position, created_at, id
	`, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.Line
	for rows.Next() {
		var (
			line      models.Line
			rawID     uuid.UUID
			productID sql.Null[uuid.UUID]
			removedAt sql.NullTime
			removedBy sql.Null[uuid.UUID]
			startDate sql.NullTime
			endDate   sql.NullTime
			changedBy sql.Null[uuid.UUID]
		)
		if err := rows.Scan(
			&rawID, &productID, &line.Display, &line.Name, &line.Quantity, &line.Delivered,
			&line.Removed, &removedAt, &removedBy, &line.RemoveReason,
			&line.ActiveForBilling, &startDate, &endDate,
			&line.ChangeSource, &line.ChangeNote, &changedBy, &line.ChangedAt, &line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		line.ID = id.LineID(rawID)
		line.OrderID = orderID
		if productID.Valid {
			pid := id.ProductID(productID.V)
			line.ProductID = &pid
		}
		if removedAt.Valid {
			t := removedAt.Time
			line.RemovedAt = &t
		}
		if removedBy.Valid {
			line.RemovedBy = id.UserID(removedBy.V)
		}
		if startDate.Valid {
			t := startDate.Time
			line.StartDate = &t
		}
		if endDate.Valid {
			t := endDate.Time
			line.EndDate = &t
		}
		if changedBy.Valid {
			line.ChangedBy = id.UserID(changedBy.V)
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOrder(ctx context.Context, e execer, order *models.Order) error {
	nextDates, engine, perms, err := encodeOrderDocs(order)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, commercial_group, company_id, state,
			subscription_status, stage_id, plan_id, subscription_flag,
			shipping_address_id, invoice_address_id,
			next_dates, engine, permissions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		uuid.UUID(order.ID), uuid.UUID(order.CustomerID), uuid.UUID(order.CommercialGroup),
		uuid.UUID(order.CompanyID), order.State,
		order.SubscriptionStatus, order.StageID, nullableUUID(planUUID(order.PlanID)), order.SubscriptionFlag,
		nullableUUID(partnerUUID(order.ShippingAddressID)), nullableUUID(partnerUUID(order.InvoiceAddressID)),
		nextDates, engine, perms, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func updateOrder(ctx context.Context, e execer, order *models.Order) error {
	nextDates, engine, perms, err := encodeOrderDocs(order)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `
		UPDATE orders SET state = $2, subscription_status = $3, stage_id = $4,
			plan_id = $5, subscription_flag = $6,
			shipping_address_id = $7, invoice_address_id = $8,
			next_dates = $9, engine = $10, permissions = $11, updated_at = $12
		WHERE id = $1
	`,
		uuid.UUID(order.ID),
		order.State, order.SubscriptionStatus, order.StageID,
		nullableUUID(planUUID(order.PlanID)), order.SubscriptionFlag,
		nullableUUID(partnerUUID(order.ShippingAddressID)), nullableUUID(partnerUUID(order.InvoiceAddressID)),
		nextDates, engine, perms, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func upsertLine(ctx context.Context, e execer, line *models.Line, position int) error {
	var productID any
	if line.ProductID != nil {
		productID = uuid.UUID(*line.ProductID)
	}
	var removedAt any
	if line.RemovedAt != nil {
		removedAt = *line.RemovedAt
	}
	var startDate, endDate any
	if line.StartDate != nil {
		startDate = *line.StartDate
	}
	if line.EndDate != nil {
		endDate = *line.EndDate
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, display, name,
			quantity, delivered, removed, removed_at, removed_by, remove_reason,
			active_for_billing, start_date, end_date,
			change_source, change_note, changed_by, changed_at, created_at, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			delivered = EXCLUDED.delivered,
			removed = EXCLUDED.removed,
			removed_at = EXCLUDED.removed_at,
			removed_by = EXCLUDED.removed_by,
			remove_reason = EXCLUDED.remove_reason,
			active_for_billing = EXCLUDED.active_for_billing,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			change_source = EXCLUDED.change_source,
			change_note = EXCLUDED.change_note,
			changed_by = EXCLUDED.changed_by,
			changed_at = EXCLUDED.changed_at,
			position = EXCLUDED.position
	`,
		uuid.UUID(line.ID), uuid.UUID(line.OrderID), productID, line.Display, line.Name,
		line.Quantity, line.Delivered, line.Removed, removedAt, nullableUUID(userUUID(line.RemovedBy)), line.RemoveReason,
		line.ActiveForBilling, startDate, endDate,
		line.ChangeSource, line.ChangeNote, nullableUUID(userUUID(line.ChangedBy)), line.ChangedAt, line.CreatedAt, position,
	)
	if err != nil {
		return fmt.Errorf("upsert order line: %w", err)
	}
	return nil
}

func encodeOrderDocs(order *models.Order) (nextDates, engine, perms []byte, err error) {
	dates := order.NextDates
	if dates == nil {
		dates = map[string]time.Time{}
	}
	if nextDates, err = json.Marshal(dates); err != nil {
		return nil, nil, nil, fmt.Errorf("encode next dates: %w", err)
	}
	if engine, err = encodeEngine(order.Engine); err != nil {
		return nil, nil, nil, fmt.Errorf("encode engine descriptor: %w", err)
	}
	if perms, err = json.Marshal(order.Permissions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode permissions: %w", err)
	}
	return nextDates, engine, perms, nil
}

func planUUID(planID *id.PlanID) uuid.UUID {
	if planID == nil {
		return uuid.Nil
	}
	return uuid.UUID(*planID)
}

func partnerUUID(partnerID id.PartnerID) uuid.UUID {
	return uuid.UUID(partnerID)
}

func userUUID(userID id.UserID) uuid.UUID {
	return uuid.UUID(userID)
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

// Schema is the order store DDL. Integration tests and the dev server
// apply it; production deployments manage it with their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                  UUID PRIMARY KEY,
	customer_id         UUID NOT NULL,
	commercial_group    UUID NOT NULL,
	company_id          UUID NOT NULL,
	state               TEXT NOT NULL,
	subscription_status TEXT NOT NULL DEFAULT '',
	stage_id            TEXT NOT NULL DEFAULT '',
	plan_id             UUID,
	subscription_flag   BOOLEAN NOT NULL DEFAULT FALSE,
	shipping_address_id UUID,
	invoice_address_id  UUID,
	next_dates          JSONB NOT NULL DEFAULT '{}',
	engine              JSONB NOT NULL DEFAULT '{}',
	permissions         JSONB NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_lines (
	id                 UUID PRIMARY KEY,
	order_id           UUID NOT NULL REFERENCES orders (id),
	product_id         UUID,
	display            TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL DEFAULT '',
	quantity           DOUBLE PRECISION NOT NULL DEFAULT 0,
	delivered          DOUBLE PRECISION NOT NULL DEFAULT 0,
	removed            BOOLEAN NOT NULL DEFAULT FALSE,
	removed_at         TIMESTAMPTZ,
	removed_by         UUID,
	remove_reason      TEXT NOT NULL DEFAULT '',
	active_for_billing BOOLEAN NOT NULL DEFAULT TRUE,
	start_date         TIMESTAMPTZ,
	end_date           TIMESTAMPTZ,
	change_source      TEXT NOT NULL DEFAULT 'backend',
	change_note        TEXT NOT NULL DEFAULT '',
	changed_by         UUID,
	changed_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	position           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS order_lines_order_idx ON order_lines (order_id, position);
`
