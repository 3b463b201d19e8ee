package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"medisupply/internal/compliance/models"
	"medisupply/internal/compliance/service"
	"medisupply/internal/platform/postgres"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
	txcontext "medisupply/pkg/platform/tx"
	"medisupply/pkg/requestcontext"
)

// Postgres persists compliance data. The partial unique index on active
// results is the only serialization point between concurrent runs.
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

func (s *Postgres) FindVendor(ctx context.Context, vendorID id.VendorID) (*models.Vendor, error) {
	var v models.Vendor
	var raw uuid.UUID
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT vendor_id, name, email, region, active FROM vendors WHERE vendor_id = $1`,
		uuid.UUID(vendorID),
	).Scan(&raw, &v.Name, &v.Email, &v.Region, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	v.ID = id.VendorID(raw)
	return &v, nil
}

func (s *Postgres) ListVendors(ctx context.Context, activeOnly bool) ([]models.Vendor, error) {
	query := `SELECT vendor_id, name, email, region, active FROM vendors`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name, vendor_id`
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var out []models.Vendor
	for rows.Next() {
		var v models.Vendor
		var raw uuid.UUID
		if err := rows.Scan(&raw, &v.Name, &v.Email, &v.Region, &v.Active); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		v.ID = id.VendorID(raw)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveVendor upserts a vendor; used for seeding.
func (s *Postgres) SaveVendor(ctx context.Context, v models.Vendor) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO vendors (vendor_id, name, email, region, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vendor_id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, region = EXCLUDED.region, active = EXCLUDED.active
	`, uuid.UUID(v.ID), v.Name, v.Email, v.Region, v.Active)
	if err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	return nil
}

func (s *Postgres) SaveSalesSnapshot(ctx context.Context, snap *models.SalesSnapshot) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_snapshots
				(snapshot_id, vendor_id, period_type, period_start, period_end, total_orders, total_sales, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(snap.ID), uuid.UUID(snap.VendorID), string(snap.Period.Type),
			snap.Period.Start, snap.Period.End, snap.TotalOrders, snap.TotalSales, snap.CapturedAt)
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("sales snapshot %s: %w", snap.Key(), sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert sales snapshot: %w", err)
		}
		for _, p := range snap.Products {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sales_snapshot_products (snapshot_id, product_id, product_name, quantity, sales)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.UUID(snap.ID), uuid.UUID(p.ProductID), p.ProductName, p.Quantity, p.Sales); err != nil {
				return fmt.Errorf("insert sales snapshot product: %w", err)
			}
		}
		return nil
	})
}

func (s *Postgres) FindSalesSnapshot(ctx context.Context, vendorID id.VendorID, period id.Period) (*models.SalesSnapshot, error) {
	q := s.conn(ctx)
	var snap models.SalesSnapshot
	var snapID, vendor uuid.UUID
	var periodType string
	var start, end time.Time
	err := q.QueryRowContext(ctx, `
		SELECT snapshot_id, vendor_id, period_type, period_start, period_end, total_orders, total_sales, captured_at
		FROM sales_snapshots
		WHERE vendor_id = $1 AND period_type = $2 AND period_start = $3 AND period_end = $4
	`, uuid.UUID(vendorID), string(period.Type), period.Start, period.End).Scan(
		&snapID, &vendor, &periodType, &start, &end, &snap.TotalOrders, &snap.TotalSales, &snap.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sales snapshot for vendor %s period %s: %w", vendorID, period.Key(), sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find sales snapshot: %w", err)
	}
	snap.ID = id.SalesSnapshotID(snapID)
	snap.VendorID = id.VendorID(vendor)
	if snap.Period, err = id.NewPeriod(id.PeriodType(periodType), start, end); err != nil {
		return nil, fmt.Errorf("sales snapshot %s period: %w", snap.ID, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, sales
		FROM sales_snapshot_products WHERE snapshot_id = $1 ORDER BY product_name, product_id
	`, snapID)
	if err != nil {
		return nil, fmt.Errorf("list sales snapshot products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.ProductSales
		var productID uuid.UUID
		if err := rows.Scan(&productID, &p.ProductName, &p.Quantity, &p.Sales); err != nil {
			return nil, fmt.Errorf("scan sales snapshot product: %w", err)
		}
		p.ProductID = id.ProductID(productID)
		snap.Products = append(snap.Products, p)
	}
	return &snap, rows.Err()
}

func (s *Postgres) SavePlanSnapshot(ctx context.Context, plan *models.PlanSnapshot) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_snapshots
				(plan_snapshot_id, region, year, quarter, period_start, period_end, total_goal, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(plan.ID), plan.Region, plan.Year, plan.Quarter,
			plan.PeriodStart, plan.PeriodEnd, plan.TotalGoal, plan.FetchedAt)
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("plan snapshot %s: %w", plan.ID, sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert plan snapshot: %w", err)
		}
		for _, g := range plan.Products {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO plan_snapshot_products (plan_snapshot_id, product_id, product_name, goal)
				VALUES ($1, $2, $3, $4)
			`, uuid.UUID(plan.ID), uuid.UUID(g.ProductID), g.ProductName, g.Goal); err != nil {
				return fmt.Errorf("insert plan snapshot product: %w", err)
			}
		}
		return nil
	})
}

const planColumns = `plan_snapshot_id, region, year, quarter, period_start, period_end, total_goal, fetched_at`

func (s *Postgres) FindPlanSnapshot(ctx context.Context, planID id.PlanSnapshotID) (*models.PlanSnapshot, error) {
	return s.findPlan(ctx,
		`SELECT `+planColumns+` FROM plan_snapshots WHERE plan_snapshot_id = $1`, uuid.UUID(planID))
}

func (s *Postgres) LatestPlanSnapshot(ctx context.Context, region string, start, end time.Time) (*models.PlanSnapshot, error) {
	return s.findPlan(ctx, `
		SELECT `+planColumns+` FROM plan_snapshots
		WHERE lower(region) = lower($1) AND period_start = $2 AND period_end = $3
		ORDER BY fetched_at DESC, plan_snapshot_id
		LIMIT 1
	`, region, start, end)
}

func (s *Postgres) findPlan(ctx context.Context, query string, args ...any) (*models.PlanSnapshot, error) {
	q := s.conn(ctx)
	var plan models.PlanSnapshot
	var planID uuid.UUID
	err := q.QueryRowContext(ctx, query, args...).Scan(&planID, &plan.Region, &plan.Year, &plan.Quarter,
		&plan.PeriodStart, &plan.PeriodEnd, &plan.TotalGoal, &plan.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan snapshot: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find plan snapshot: %w", err)
	}
	plan.ID = id.PlanSnapshotID(planID)
	plan.PeriodStart = plan.PeriodStart.UTC()
	plan.PeriodEnd = plan.PeriodEnd.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, goal
		FROM plan_snapshot_products WHERE plan_snapshot_id = $1 ORDER BY product_name, product_id
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list plan snapshot products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g models.ProductGoal
		var productID uuid.UUID
		if err := rows.Scan(&productID, &g.ProductName, &g.Goal); err != nil {
			return nil, fmt.Errorf("scan plan snapshot product: %w", err)
		}
		g.ProductID = id.ProductID(productID)
		plan.Products = append(plan.Products, g)
	}
	return &plan, rows.Err()
}

// CreateVersion locks the active result for the key, if any. Two runs that
// both find none race on the partial unique index and the loser gets
// ErrConflict.
func (s *Postgres) CreateVersion(ctx context.Context, result *models.ComplianceResult, supersede bool) error {
	key := result.Key()
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var activeID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT compliance_id FROM compliance_results
			WHERE vendor_id = $1 AND period_type = $2 AND period_start = $3 AND period_end = $4
			  AND plan_snapshot_id = $5 AND superseded_at IS NULL
			FOR UPDATE
		`, uuid.UUID(key.VendorID), string(key.Period.Type), key.Period.Start, key.Period.End,
			uuid.UUID(key.PlanSnapshotID)).Scan(&activeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("lock active compliance result: %w", err)
		case !supersede:
			return fmt.Errorf("compliance %s: %w", key, sentinel.ErrConflict)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE compliance_results SET superseded_at = $2 WHERE compliance_id = $1`,
				activeID, requestcontext.Now(ctx)); err != nil {
				return fmt.Errorf("supersede compliance result: %w", err)
			}
			supersedes := id.ComplianceID(activeID)
			result.SupersedesID = &supersedes
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM compliance_results
			WHERE vendor_id = $1 AND period_type = $2 AND period_start = $3 AND period_end = $4 AND plan_snapshot_id = $5
		`, uuid.UUID(key.VendorID), string(key.Period.Type), key.Period.Start, key.Period.End,
			uuid.UUID(key.PlanSnapshotID)).Scan(&result.Version); err != nil {
			return fmt.Errorf("next compliance version: %w", err)
		}

		var supersedesID uuid.NullUUID
		if result.SupersedesID != nil {
			supersedesID = uuid.NullUUID{UUID: uuid.UUID(*result.SupersedesID), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO compliance_results (`+resultColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULL)
		`, uuid.UUID(result.ID), uuid.UUID(result.VendorID), string(result.Period.Type),
			result.Period.Start, result.Period.End, uuid.UUID(result.PlanSnapshotID),
			uuid.UUID(result.SalesSnapshotID), result.Version, result.TotalGoal, result.TotalSales,
			result.CompliancePct, string(result.Status), result.ComputedAt, supersedesID)
		switch {
		case err == nil:
		case postgres.IsUniqueViolation(err):
			result.SupersedesID = nil
			return fmt.Errorf("compliance %s: %w", key, sentinel.ErrConflict)
		case postgres.IsForeignKeyViolation(err):
			return fmt.Errorf("compliance %s references %s: %w", key, postgres.ConstraintName(err), sentinel.ErrNotFound)
		default:
			return fmt.Errorf("insert compliance result: %w", err)
		}

		for _, p := range result.Products {
			var pct decimal.NullDecimal
			if p.CompliancePct != nil {
				pct = decimal.NewNullDecimal(*p.CompliancePct)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO compliance_products (compliance_id, product_id, product_name, goal, sales, compliance_pct, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.UUID(result.ID), uuid.UUID(p.ProductID), p.ProductName, p.Goal, p.Sales, pct, string(p.Status)); err != nil {
				return fmt.Errorf("insert compliance product: %w", err)
			}
		}
		return nil
	})
}

const resultColumns = `compliance_id, vendor_id, period_type, period_start, period_end, plan_snapshot_id,
	sales_snapshot_id, version, total_goal, total_sales, compliance_pct, status, computed_at,
	supersedes_id, superseded_at`

func (s *Postgres) FindResult(ctx context.Context, complianceID id.ComplianceID) (*models.ComplianceResult, error) {
	results, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM compliance_results WHERE compliance_id = $1`, uuid.UUID(complianceID))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("compliance result %s: %w", complianceID, sentinel.ErrNotFound)
	}
	return results[0], nil
}

func (s *Postgres) ListResults(ctx context.Context, filter service.ResultFilter) ([]*models.ComplianceResult, error) {
	var where []string
	var args []any
	if !filter.IncludeSuperseded {
		where = append(where, "superseded_at IS NULL")
	}
	if !filter.VendorID.IsNil() {
		args = append(args, uuid.UUID(filter.VendorID))
		where = append(where, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if filter.Period != nil {
		args = append(args, string(filter.Period.Type), filter.Period.Start, filter.Period.End)
		where = append(where, fmt.Sprintf("period_type = $%d AND period_start = $%d AND period_end = $%d",
			len(args)-2, len(args)-1, len(args)))
	}
	query := `SELECT ` + resultColumns + ` FROM compliance_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY computed_at DESC, version DESC`
	return s.queryResults(ctx, query, args...)
}

func (s *Postgres) queryResults(ctx context.Context, query string, args ...any) ([]*models.ComplianceResult, error) {
	q := s.conn(ctx)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compliance results: %w", err)
	}
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}
	return results, loadResultProducts(ctx, q, results)
}

func scanResults(rows *sql.Rows) ([]*models.ComplianceResult, error) {
	defer rows.Close()
	out := make([]*models.ComplianceResult, 0)
	for rows.Next() {
		var r models.ComplianceResult
		var resultID, vendorID, planID, salesID uuid.UUID
		var periodType, status string
		var start, end time.Time
		var supersedes uuid.NullUUID
		var supersededAt sql.NullTime
		if err := rows.Scan(&resultID, &vendorID, &periodType, &start, &end, &planID, &salesID,
			&r.Version, &r.TotalGoal, &r.TotalSales, &r.CompliancePct, &status, &r.ComputedAt,
			&supersedes, &supersededAt); err != nil {
			return nil, fmt.Errorf("scan compliance result: %w", err)
		}
		period, err := id.NewPeriod(id.PeriodType(periodType), start, end)
		if err != nil {
			return nil, fmt.Errorf("compliance result %s period: %w", resultID, err)
		}
		r.ID = id.ComplianceID(resultID)
		r.VendorID = id.VendorID(vendorID)
		r.Period = period
		r.PlanSnapshotID = id.PlanSnapshotID(planID)
		r.SalesSnapshotID = id.SalesSnapshotID(salesID)
		r.Status = models.Status(status)
		if supersedes.Valid {
			v := id.ComplianceID(supersedes.UUID)
			r.SupersedesID = &v
		}
		if supersededAt.Valid {
			v := supersededAt.Time
			r.SupersededAt = &v
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func loadResultProducts(ctx context.Context, q queryer, results []*models.ComplianceResult) error {
	ids := make([]string, len(results))
	byID := make(map[id.ComplianceID]*models.ComplianceResult, len(results))
	for i, r := range results {
		ids[i] = r.ID.String()
		byID[r.ID] = r
		r.Products = []models.ComplianceProduct{}
	}
	rows, err := q.QueryContext(ctx, `
		SELECT compliance_id, product_id, product_name, goal, sales, compliance_pct, status
		FROM compliance_products
		WHERE compliance_id = ANY($1::uuid[])
		ORDER BY compliance_id, product_name, product_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list compliance products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.ComplianceProduct
		var resultID, productID uuid.UUID
		var pct decimal.NullDecimal
		var status string
		if err := rows.Scan(&resultID, &productID, &p.ProductName, &p.Goal, &p.Sales, &pct, &status); err != nil {
			return fmt.Errorf("scan compliance product: %w", err)
		}
		p.ProductID = id.ProductID(productID)
		p.Status = models.Status(status)
		if pct.Valid {
			v := pct.Decimal
			p.CompliancePct = &v
		}
		r := byID[id.ComplianceID(resultID)]
		r.Products = append(r.Products, p)
	}
	return rows.Err()
}
