package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/pricepack/internal/database"
	"github.com/aristath/pricepack/internal/domain"
	"github.com/rs/zerolog"
)

// SQLiteRepository reads the catalog tables from catalog.db
type SQLiteRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteRepository creates a catalog repository over a migrated catalog database
func NewSQLiteRepository(db *sql.DB, log zerolog.Logger) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		log: log.With().Str("repo", "catalog").Logger(),
	}
}

// LatestWeek returns the most recent priced week
func (r *SQLiteRepository) LatestWeek(ctx context.Context) (int, error) {
	var week sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(week) FROM price_weekly").Scan(&week); err != nil {
		return 0, fmt.Errorf("failed to query latest week: %w", err)
	}
	if !week.Valid {
		return 0, ErrEmptyCatalog
	}
	return int(week.Int64), nil
}

// SKUs returns all SKU reference rows ordered by id
func (r *SQLiteRepository) SKUs(ctx context.Context) ([]domain.SKU, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sku_id, brand, pack_size_ml, pack_type, tier, flavor, sugar_free
		FROM sku_master ORDER BY sku_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sku_master: %w", err)
	}
	defer rows.Close()

	var skus []domain.SKU
	for rows.Next() {
		var s domain.SKU
		var sugarFree int
		if err := rows.Scan(&s.ID, &s.Brand, &s.PackSizeML, &s.PackType, &s.Tier, &s.Flavor, &sugarFree); err != nil {
			return nil, fmt.Errorf("failed to scan sku: %w", err)
		}
		s.SugarFree = sugarFree != 0
		skus = append(skus, s)
	}
	return skus, rows.Err()
}

// Prices returns price observations from sinceWeek on
func (r *SQLiteRepository) Prices(ctx context.Context, sinceWeek int) ([]domain.PriceObservation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT week, retailer_id, sku_id, net_price, list_price, promo_flag, promo_depth, discount_spend
		FROM price_weekly WHERE week >= ? ORDER BY week, retailer_id, sku_id`, sinceWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to query price_weekly: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var p domain.PriceObservation
		var promo int
		if err := rows.Scan(&p.Week, &p.OutletID, &p.SKUID, &p.NetPrice, &p.ListPrice, &promo, &p.PromoDepth, &p.DiscountSpend); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		p.PromoFlag = promo != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// Demand returns demand observations from sinceWeek on
func (r *SQLiteRepository) Demand(ctx context.Context, sinceWeek int) ([]domain.DemandObservation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT week, retailer_id, sku_id, units, revenue
		FROM demand_weekly WHERE week >= ? ORDER BY week, retailer_id, sku_id`, sinceWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to query demand_weekly: %w", err)
	}
	defer rows.Close()

	var out []domain.DemandObservation
	for rows.Next() {
		var d domain.DemandObservation
		if err := rows.Scan(&d.Week, &d.OutletID, &d.SKUID, &d.Units, &d.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan demand row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Costs returns per-SKU unit costs
func (r *SQLiteRepository) Costs(ctx context.Context) ([]domain.CostRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT sku_id, cogs_per_unit, logistics_per_unit FROM costs ORDER BY sku_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	defer rows.Close()

	var out []domain.CostRecord
	for rows.Next() {
		var c domain.CostRecord
		if err := rows.Scan(&c.SKUID, &c.COGSPerUnit, &c.LogisticsPerUnit); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Guardrails returns per-SKU pricing bounds
func (r *SQLiteRepository) Guardrails(ctx context.Context) ([]domain.Guardrail, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sku_id, min_price, max_price, max_pct_change, min_shelf_share, must_stock_flag
		FROM guardrails ORDER BY sku_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardrails: %w", err)
	}
	defer rows.Close()

	var out []domain.Guardrail
	for rows.Next() {
		var g domain.Guardrail
		var mustStock int
		if err := rows.Scan(&g.SKUID, &g.MinPrice, &g.MaxPrice, &g.MaxPctChange, &g.MinShelfShare, &mustStock); err != nil {
			return nil, fmt.Errorf("failed to scan guardrail row: %w", err)
		}
		g.MustStock = mustStock != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// Elasticities returns own and cross elasticities. A NULL own elasticity is
// returned as 0 and normalized downstream. Unparseable cross elasticity JSON
// is logged and treated as empty.
func (r *SQLiteRepository) Elasticities(ctx context.Context) ([]domain.ElasticityRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT sku_id, own_elast, cross_elast_json FROM elasticities ORDER BY sku_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query elasticities: %w", err)
	}
	defer rows.Close()

	var out []domain.ElasticityRecord
	for rows.Next() {
		var e domain.ElasticityRecord
		var own sql.NullFloat64
		var crossJSON sql.NullString
		if err := rows.Scan(&e.SKUID, &own, &crossJSON); err != nil {
			return nil, fmt.Errorf("failed to scan elasticity row: %w", err)
		}
		e.Own = own.Float64
		if crossJSON.Valid && crossJSON.String != "" {
			if err := json.Unmarshal([]byte(crossJSON.String), &e.Cross); err != nil {
				r.log.Warn().Err(err).Int64("sku_id", int64(e.SKUID)).Msg("Ignoring malformed cross elasticities")
				e.Cross = nil
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Version fingerprints the catalog from catalog_meta and table counts
func (r *SQLiteRepository) Version(ctx context.Context) (Version, error) {
	var v Version
	var week sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT
			COALESCE((SELECT generation FROM catalog_meta WHERE id = 1), 0),
			(SELECT MAX(week) FROM price_weekly),
			(SELECT COUNT(*) FROM sku_master),
			(SELECT COUNT(*) FROM price_weekly),
			(SELECT COUNT(*) FROM demand_weekly)`).
		Scan(&v.Generation, &week, &v.SKUs, &v.PriceRows, &v.DemandRows)
	if err != nil {
		return Version{}, fmt.Errorf("failed to read catalog version: %w", err)
	}
	v.LatestWeek = int(week.Int64)
	return v, nil
}

// Replace swaps the whole catalog for ds in one transaction and bumps the
// generation, which is how a data refresh announces itself to the engine.
func (r *SQLiteRepository) Replace(ctx context.Context, ds *domain.Dataset) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"sku_master", "price_weekly", "demand_weekly", "costs", "guardrails", "elasticities"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, s := range ds.SKUs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO sku_master (sku_id, brand, pack_size_ml, pack_type, tier, flavor, sugar_free)
				VALUES (?, ?, ?, ?, ?, ?, ?)`, s.ID, s.Brand, s.PackSizeML, s.PackType, s.Tier, s.Flavor, boolToInt(s.SugarFree)); err != nil {
				return fmt.Errorf("failed to insert sku %d: %w", s.ID, err)
			}
		}
		for _, p := range ds.Prices {
			if _, err := tx.ExecContext(ctx, `INSERT INTO price_weekly (week, retailer_id, sku_id, net_price, list_price, promo_flag, promo_depth, discount_spend)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, p.Week, p.OutletID, p.SKUID, p.NetPrice, p.ListPrice, boolToInt(p.PromoFlag), p.PromoDepth, p.DiscountSpend); err != nil {
				return fmt.Errorf("failed to insert price row: %w", err)
			}
		}
		for _, d := range ds.Demand {
			if _, err := tx.ExecContext(ctx, `INSERT INTO demand_weekly (week, retailer_id, sku_id, units, revenue)
				VALUES (?, ?, ?, ?, ?)`, d.Week, d.OutletID, d.SKUID, d.Units, d.Revenue); err != nil {
				return fmt.Errorf("failed to insert demand row: %w", err)
			}
		}
		for _, c := range ds.Costs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO costs (sku_id, cogs_per_unit, logistics_per_unit) VALUES (?, ?, ?)`,
				c.SKUID, c.COGSPerUnit, c.LogisticsPerUnit); err != nil {
				return fmt.Errorf("failed to insert cost row: %w", err)
			}
		}
		for _, g := range ds.Guardrails {
			if _, err := tx.ExecContext(ctx, `INSERT INTO guardrails (sku_id, min_price, max_price, max_pct_change, min_shelf_share, must_stock_flag)
				VALUES (?, ?, ?, ?, ?, ?)`, g.SKUID, g.MinPrice, g.MaxPrice, g.MaxPctChange, g.MinShelfShare, boolToInt(g.MustStock)); err != nil {
				return fmt.Errorf("failed to insert guardrail row: %w", err)
			}
		}
		for _, e := range ds.Elasticities {
			cross := e.Cross
			if cross == nil {
				cross = map[string]float64{}
			}
			crossJSON, err := json.Marshal(cross)
			if err != nil {
				return fmt.Errorf("failed to encode cross elasticities for sku %d: %w", e.SKUID, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO elasticities (sku_id, own_elast, cross_elast_json) VALUES (?, ?, ?)`,
				e.SKUID, e.Own, string(crossJSON)); err != nil {
				return fmt.Errorf("failed to insert elasticity row: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO catalog_meta (id, generation, updated_at) VALUES (1, 1, ?)
			ON CONFLICT(id) DO UPDATE SET generation = generation + 1, updated_at = excluded.updated_at`, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to bump catalog generation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Int("skus", len(ds.SKUs)).
		Int("price_rows", len(ds.Prices)).
		Int("demand_rows", len(ds.Demand)).
		Msg("Catalog replaced")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
