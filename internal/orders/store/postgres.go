package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medisupply/internal/orders/models"
	"medisupply/internal/platform/postgres"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
	txcontext "medisupply/pkg/platform/tx"
)

// Postgres persists orders. Execute locks the order row with FOR UPDATE for
// the duration of validate and mutate.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const orderColumns = `order_id, client_id, seller_id, status_id, total_value, created_at, last_updated_at, estimated_delivery`

func (s *Postgres) Create(ctx context.Context, order *models.Order, created models.Transition) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(order.ID), uuid.UUID(order.ClientID), uuid.UUID(order.SellerID),
			order.State.ID(), order.TotalValue, order.CreatedAt, order.LastUpdatedAt, order.EstimatedDelivery,
		)
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.ID, sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range order.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_value, reservation_id)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.UUID(order.ID), l.LineNo, uuid.UUID(l.ProductID), l.Quantity, l.UnitValue, uuid.UUID(l.ReservationID))
			if postgres.IsForeignKeyViolation(err) {
				return fmt.Errorf("line %d references %s: %w", l.LineNo, postgres.ConstraintName(err), sentinel.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("insert order line %d: %w", l.LineNo, err)
			}
		}
		return appendHistory(ctx, tx, created)
	})
}

func (s *Postgres) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	return s.findByID(ctx, s.conn(ctx), orderID, false)
}

func (s *Postgres) ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.Order, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE client_id = $1 ORDER BY last_updated_at DESC`,
		uuid.UUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list client orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Postgres) ListDelivered(ctx context.Context, sellerID id.SellerID, from, to time.Time) ([]*models.Order, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE seller_id = $1 AND status_id = $2 AND last_updated_at BETWEEN $3 AND $4
		ORDER BY last_updated_at
	`, uuid.UUID(sellerID), models.StateDelivered.ID(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list delivered orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Postgres) ListHistory(ctx context.Context, orderID id.OrderID) ([]models.Transition, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT from_status_id, to_status_id, changed_at, reason
		FROM order_state_history
		WHERE order_id = $1
		ORDER BY id
	`, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var from sql.NullInt16
		var to int
		t := models.Transition{OrderID: orderID}
		if err := rows.Scan(&from, &to, &t.ChangedAt, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if t.To, err = models.StateFromID(to); err != nil {
			return nil, err
		}
		if from.Valid {
			f, err := models.StateFromID(int(from.Int16))
			if err != nil {
				return nil, err
			}
			t.From = &f
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) Execute(ctx context.Context, orderID id.OrderID,
	validate func(ctx context.Context, o *models.Order) error,
	mutate func(o *models.Order) *models.Transition,
) (*models.Order, error) {
	var out *models.Order
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		o, err := s.findByID(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if err := validate(ctx, o); err != nil {
			return err
		}
		t := mutate(o)

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status_id = $2, last_updated_at = $3, estimated_delivery = $4
			WHERE order_id = $1
		`, uuid.UUID(o.ID), o.State.ID(), o.LastUpdatedAt, o.EstimatedDelivery)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if t != nil {
			if err := appendHistory(ctx, tx, *t); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) findByID(ctx context.Context, q queryer, orderID id.OrderID, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, sentinel.ErrNotFound)
	}
	if err := loadLines(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders[0], nil
}

func (s *Postgres) attachLines(ctx context.Context, orders []*models.Order) error {
	return loadLines(ctx, s.conn(ctx), orders)
}

func loadLines(ctx context.Context, q queryer, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[id.OrderID]*models.Order, len(orders))
	ids := make([]string, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID.String()
	}
	rows, err := q.QueryContext(ctx, `
		SELECT l.order_id, l.line_no, l.product_id, COALESCE(p.sku, ''), l.quantity, l.unit_value, l.reservation_id
		FROM order_lines l
		LEFT JOIN products p ON p.product_id = l.product_id
		WHERE l.order_id = ANY($1::uuid[])
		ORDER BY l.order_id, l.line_no
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID, productID, reservationID uuid.UUID
		var l models.OrderLine
		if err := rows.Scan(&orderID, &l.LineNo, &productID, &l.SKU, &l.Quantity, &l.UnitValue, &reservationID); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		l.ProductID = id.ProductID(productID)
		l.ReservationID = id.ReservationID(reservationID)
		if o, ok := byID[id.OrderID(orderID)]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func appendHistory(ctx context.Context, tx *sql.Tx, t models.Transition) error {
	var from any
	if t.From != nil {
		from = t.From.ID()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_state_history (order_id, from_status_id, to_status_id, changed_at, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(t.OrderID), from, t.To.ID(), t.ChangedAt, t.Reason)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		var o models.Order
		var orderID, clientID, sellerID uuid.UUID
		var statusID int
		var eta sql.NullTime
		if err := rows.Scan(&orderID, &clientID, &sellerID, &statusID, &o.TotalValue, &o.CreatedAt, &o.LastUpdatedAt, &eta); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		state, err := models.StateFromID(statusID)
		if err != nil {
			return nil, err
		}
		o.ID = id.OrderID(orderID)
		o.ClientID = id.ClientID(clientID)
		o.SellerID = id.SellerID(sellerID)
		o.State = state
		if eta.Valid {
			t := eta.Time.UTC()
			o.EstimatedDelivery = &t
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}
