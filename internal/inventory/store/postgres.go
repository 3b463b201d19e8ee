package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medisupply/internal/inventory/models"
	"medisupply/internal/platform/postgres"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
	txcontext "medisupply/pkg/platform/tx"
)

// Postgres persists the ledger. Lots are locked with SELECT ... FOR UPDATE
// in lot_id order so concurrent transactions never deadlock.
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

const lotColumns = `lot_id, product_id, warehouse_id, lot_code, country, on_hand, reserved, received_at`

func (s *Postgres) SaveLot(ctx context.Context, lot *models.StockLot) error {
	query := `
		INSERT INTO stock_lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(lot.ID), uuid.UUID(lot.ProductID), uuid.UUID(lot.WarehouseID),
		lot.LotCode, lot.Country, lot.OnHand, lot.Reserved, lot.ReceivedAt,
	)
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("lot %s: %w", lot.LotCode, sentinel.ErrConflict)
	case postgres.IsForeignKeyViolation(err):
		return fmt.Errorf("lot %s references %s: %w", lot.LotCode, postgres.ConstraintName(err), sentinel.ErrNotFound)
	default:
		return fmt.Errorf("insert lot: %w", err)
	}
}

func (s *Postgres) ListLots(ctx context.Context, productID id.ProductID) ([]*models.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE product_id = $1 ORDER BY received_at, lot_code, lot_id`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(productID))
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return scanLots(rows)
}

func (s *Postgres) FindReservation(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error) {
	return s.loadReservation(ctx, s.conn(ctx), reservationID, false)
}

func (s *Postgres) ExecuteReserve(ctx context.Context, productID id.ProductID,
	fn func(lots []*models.StockLot) (*models.Reservation, error)) (*models.Reservation, error) {
	var out *models.Reservation
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE product_id = $1 ORDER BY lot_id FOR UPDATE`
		rows, err := tx.QueryContext(ctx, query, uuid.UUID(productID))
		if err != nil {
			return fmt.Errorf("lock lots: %w", err)
		}
		lots, err := scanLots(rows)
		if err != nil {
			return err
		}

		res, err := fn(lots)
		if err != nil {
			return err
		}
		if err := updateLots(ctx, tx, lots); err != nil {
			return err
		}
		if err := insertReservation(ctx, tx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) ExecuteReservation(ctx context.Context, reservationID id.ReservationID,
	fn func(res *models.Reservation, lots map[id.LotID]*models.StockLot) error) (*models.Reservation, error) {
	var out *models.Reservation
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := s.loadReservation(ctx, tx, reservationID, true)
		if err != nil {
			return err
		}

		lotIDs := make([]string, 0, len(res.Allocations))
		for _, a := range res.Allocations {
			lotIDs = append(lotIDs, a.LotID.String())
		}
		query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE lot_id = ANY($1::uuid[]) ORDER BY lot_id FOR UPDATE`
		rows, err := tx.QueryContext(ctx, query, pq.Array(lotIDs))
		if err != nil {
			return fmt.Errorf("lock reservation lots: %w", err)
		}
		list, err := scanLots(rows)
		if err != nil {
			return err
		}
		lots := make(map[id.LotID]*models.StockLot, len(list))
		for _, l := range list {
			lots[l.ID] = l
		}

		before := res.Status
		if err := fn(res, lots); err != nil {
			return err
		}
		if res.Status == before {
			out = res
			return nil
		}
		if err := updateLots(ctx, tx, list); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reservations SET status = $2, updated_at = $3 WHERE reservation_id = $1`,
			uuid.UUID(res.ID), string(res.Status), res.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) loadReservation(ctx context.Context, q queryer, reservationID id.ReservationID, forUpdate bool) (*models.Reservation, error) {
	query := `
		SELECT reservation_id, product_id, quantity, status, created_at, updated_at
		FROM reservations
		WHERE reservation_id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var res models.Reservation
	var rawID, rawProduct uuid.UUID
	var status string
	err := q.QueryRowContext(ctx, query, uuid.UUID(reservationID)).Scan(
		&rawID, &rawProduct, &res.Quantity, &status, &res.CreatedAt, &res.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	res.ID = id.ReservationID(rawID)
	res.ProductID = id.ProductID(rawProduct)
	res.Status = models.ReservationStatus(status)

	rows, err := q.QueryContext(ctx, `
		SELECT lot_id, warehouse_id, quantity
		FROM reservation_allocations
		WHERE reservation_id = $1
		ORDER BY lot_id
	`, uuid.UUID(reservationID))
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Allocation
		var lotID, warehouseID uuid.UUID
		if err := rows.Scan(&lotID, &warehouseID, &a.Quantity); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.LotID = id.LotID(lotID)
		a.WarehouseID = id.WarehouseID(warehouseID)
		res.Allocations = append(res.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return &res, nil
}

func updateLots(ctx context.Context, tx *sql.Tx, lots []*models.StockLot) error {
	if len(lots) == 0 {
		return nil
	}
	ids := make([]string, len(lots))
	onHand := make([]int64, len(lots))
	reserved := make([]int64, len(lots))
	for i, l := range lots {
		ids[i] = l.ID.String()
		onHand[i] = int64(l.OnHand)
		reserved[i] = int64(l.Reserved)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE stock_lots AS l
		SET on_hand = u.on_hand, reserved = u.reserved
		FROM unnest($1::uuid[], $2::int[], $3::int[]) AS u(lot_id, on_hand, reserved)
		WHERE l.lot_id = u.lot_id
	`, pq.Array(ids), pq.Array(onHand), pq.Array(reserved))
	if postgres.IsCheckViolation(err) {
		return fmt.Errorf("update lots: %w", sentinel.ErrInsufficient)
	}
	if err != nil {
		return fmt.Errorf("update lots: %w", err)
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, res *models.Reservation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (reservation_id, product_id, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(res.ID), uuid.UUID(res.ProductID), res.Quantity, string(res.Status), res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	lotIDs := make([]string, len(res.Allocations))
	warehouseIDs := make([]string, len(res.Allocations))
	quantities := make([]int64, len(res.Allocations))
	for i, a := range res.Allocations {
		lotIDs[i] = a.LotID.String()
		warehouseIDs[i] = a.WarehouseID.String()
		quantities[i] = int64(a.Quantity)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservation_allocations (reservation_id, lot_id, warehouse_id, quantity)
		SELECT $1, u.lot_id, u.warehouse_id, u.quantity
		FROM unnest($2::uuid[], $3::uuid[], $4::int[]) AS u(lot_id, warehouse_id, quantity)
	`, uuid.UUID(res.ID), pq.Array(lotIDs), pq.Array(warehouseIDs), pq.Array(quantities))
	if err != nil {
		return fmt.Errorf("insert allocations: %w", err)
	}
	return nil
}

func scanLots(rows *sql.Rows) ([]*models.StockLot, error) {
	defer rows.Close()
	var out []*models.StockLot
	for rows.Next() {
		var l models.StockLot
		var lotID, productID, warehouseID uuid.UUID
		if err := rows.Scan(&lotID, &productID, &warehouseID, &l.LotCode, &l.Country, &l.OnHand, &l.Reserved, &l.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		l.ID = id.LotID(lotID)
		l.ProductID = id.ProductID(productID)
		l.WarehouseID = id.WarehouseID(warehouseID)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return out, nil
}
