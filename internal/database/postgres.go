package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresDB is the product store on PostgreSQL, written with plain SQL
type PostgresDB struct {
	conn *sql.DB
	q    querier
	now  func() time.Time
}

func NewPostgresDB(host, port, user, password, dbname string) (*PostgresDB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{conn: conn, q: conn, now: time.Now}, nil
}

// NewPostgresDBFromConn wraps an already opened connection pool
func NewPostgresDBFromConn(conn *sql.DB) *PostgresDB {
	return &PostgresDB{conn: conn, q: conn, now: time.Now}
}

func (db *PostgresDB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the product tables if they don't exist
func (db *PostgresDB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id CHAR(36) PRIMARY KEY,
		owner_id CHAR(36) NOT NULL,
		title VARCHAR(255) NOT NULL,
		category VARCHAR(50) NOT NULL,
		product_type VARCHAR(50) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location VARCHAR(255) NOT NULL DEFAULT '',
		security_deposit BIGINT,
		purchase_year DATE,
		purchase_price BIGINT NOT NULL DEFAULT 0,
		ownership_history VARCHAR(20) NOT NULL DEFAULT 'firsthand',

		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		status_message TEXT,
		status_updated_at TIMESTAMP,

		views_count BIGINT NOT NULL DEFAULT 0 CHECK (views_count >= 0),
		rental_count BIGINT NOT NULL DEFAULT 0 CHECK (rental_count >= 0),
		average_rating DECIMAL(3, 2) CHECK (average_rating BETWEEN 0 AND 5),
		version BIGINT NOT NULL DEFAULT 1,

		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_products_product_type ON products(product_type);
	CREATE INDEX IF NOT EXISTS idx_products_owner_id ON products(owner_id);

	CREATE TABLE IF NOT EXISTS product_images (
		id CHAR(36) PRIMARY KEY,
		product_id CHAR(36) NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		storage_key VARCHAR(255) NOT NULL,
		image_url VARCHAR(512) NOT NULL,
		content_type VARCHAR(50) NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS pricing_tiers (
		id CHAR(36) PRIMARY KEY,
		product_id CHAR(36) NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		duration_unit VARCHAR(10) NOT NULL,
		base_price BIGINT NOT NULL CHECK (base_price > 0),
		max_period BIGINT CHECK (max_period > 0),
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CONSTRAINT idx_pricing_product_unit UNIQUE (product_id, duration_unit)
	);

	CREATE TABLE IF NOT EXISTS unavailable_periods (
		id CHAR(36) PRIMARY KEY,
		product_id CHAR(36) NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		is_range BOOLEAN NOT NULL DEFAULT FALSE,
		single_date DATE,
		range_start DATE,
		range_end DATE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CHECK (
			(is_range AND single_date IS NULL AND range_start IS NOT NULL AND range_end IS NOT NULL AND range_start <= range_end)
			OR (NOT is_range AND single_date IS NOT NULL AND range_start IS NULL AND range_end IS NULL)
		)
	);

	CREATE INDEX IF NOT EXISTS idx_unavailable_product ON unavailable_periods(product_id);

	CREATE TABLE IF NOT EXISTS delete_logs (
		id SERIAL PRIMARY KEY,
		product_id CHAR(36) NOT NULL,
		owner_id CHAR(36) NOT NULL,
		title VARCHAR(255),
		archived_at TIMESTAMP,
		deleted_at TIMESTAMP NOT NULL DEFAULT NOW(),
		reason VARCHAR(50) NOT NULL
	);
	`
	_, err := db.conn.Exec(query)
	return err
}

const productColumns = `
	id, owner_id, title, category, product_type, description, location,
	security_deposit, purchase_year, purchase_price, ownership_history,
	status, status_message, status_updated_at,
	views_count, rental_count, average_rating, version,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Category, &p.ProductType, &p.Description, &p.Location,
		&p.SecurityDeposit, &p.PurchaseYear, &p.PurchasePrice, &p.OwnershipHistory,
		&p.Status, &p.StatusMessage, &p.StatusUpdatedAt,
		&p.ViewsCount, &p.RentalCount, &p.AverageRating, &p.Version,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product and its children
func (db *PostgresDB) CreateProduct(ctx context.Context, p *models.Product) error {
	return db.InTx(ctx, func(s product.Store) error {
		tx := s.(*PostgresDB)
		now := tx.now().UTC()
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = models.ProductStatusDraft
		}
		if p.OwnershipHistory == "" {
			p.OwnershipHistory = models.OwnershipFirsthand
		}
		p.Version = 1
		p.CreatedAt, p.UpdatedAt = now, now

		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			p.ID, p.OwnerID, p.Title, p.Category, p.ProductType, p.Description, p.Location,
			p.SecurityDeposit, p.PurchaseYear, p.PurchasePrice, p.OwnershipHistory,
			p.Status, p.StatusMessage, p.StatusUpdatedAt,
			p.ViewsCount, p.RentalCount, p.AverageRating, p.Version,
			p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}

		for i := range p.Images {
			p.Images[i].ProductID = p.ID
		}
		if err := tx.AddImages(ctx, p.Images); err != nil {
			return err
		}
		for i := range p.PricingTiers {
			p.PricingTiers[i].ProductID = p.ID
			if err := tx.insertTier(ctx, &p.PricingTiers[i]); err != nil {
				return err
			}
		}
		for i := range p.UnavailablePeriods {
			p.UnavailablePeriods[i].ProductID = p.ID
			if err := tx.AddUnavailablePeriod(ctx, &p.UnavailablePeriods[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProduct retrieves a product with its children in display order
func (db *PostgresDB) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := db.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Images, err = db.listImages(ctx, id); err != nil {
		return nil, err
	}
	if p.PricingTiers, err = db.listTiers(ctx, id); err != nil {
		return nil, err
	}
	if p.UnavailablePeriods, err = db.ListUnavailablePeriods(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProducts retrieves a filtered page of products, newest first
func (db *PostgresDB) ListProducts(ctx context.Context, f product.ListFilter) ([]models.Product, int64, error) {
	var conds []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("status", string(f.Status))
	add("category", f.Category)
	add("product_type", f.ProductType)
	add("owner_id", f.OwnerID)

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := db.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args))

	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range products {
		if products[i].Images, err = db.listImages(ctx, products[i].ID); err != nil {
			return nil, 0, err
		}
		if products[i].PricingTiers, err = db.listTiers(ctx, products[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return products, total, nil
}

// UpdateProductFields updates the given columns of one product
func (db *PostgresDB) UpdateProductFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []interface{}
	for column, value := range fields {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(args)))
	}
	args = append(args, db.now().UTC(), id)
	query := fmt.Sprintf(`UPDATE products SET %s, updated_at = $%d WHERE id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	return expectRow(db.q.ExecContext(ctx, query, args...))
}

// DeleteProduct removes a product; children go with it through ON DELETE CASCADE
func (db *PostgresDB) DeleteProduct(ctx context.Context, id string) error {
	return db.InTx(ctx, func(s product.Store) error {
		tx := s.(*PostgresDB)
		var ownerID, title string
		err := tx.q.QueryRowContext(ctx, `DELETE FROM products WHERE id = $1 RETURNING owner_id, title`, id).
			Scan(&ownerID, &title)
		if errors.Is(err, sql.ErrNoRows) {
			return product.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.q.ExecContext(ctx,
			`INSERT INTO delete_logs (product_id, owner_id, title, reason) VALUES ($1, $2, $3, $4)`,
			id, ownerID, title, models.DeleteReasonOwner)
		return err
	})
}

// AddImages inserts image rows
func (db *PostgresDB) AddImages(ctx context.Context, images []models.ProductImage) error {
	now := db.now().UTC()
	for i := range images {
		img := &images[i]
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		img.CreatedAt, img.UpdatedAt = now, now
		_, err := db.q.ExecContext(ctx, `
			INSERT INTO product_images (id, product_id, storage_key, image_url, content_type, size, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			img.ID, img.ProductID, img.StorageKey, img.ImageURL, img.ContentType, img.Size, img.CreatedAt, img.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteImage removes one image of a product and returns the removed row
func (db *PostgresDB) DeleteImage(ctx context.Context, productID, imageID string) (*models.ProductImage, error) {
	var img models.ProductImage
	err := db.q.QueryRowContext(ctx, `
		DELETE FROM product_images WHERE id = $1 AND product_id = $2
		RETURNING id, product_id, storage_key, image_url, content_type, size, created_at, updated_at`,
		imageID, productID).
		Scan(&img.ID, &img.ProductID, &img.StorageKey, &img.ImageURL, &img.ContentType, &img.Size, &img.CreatedAt, &img.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (db *PostgresDB) listImages(ctx context.Context, productID string) ([]models.ProductImage, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, product_id, storage_key, image_url, content_type, size, created_at, updated_at
		FROM product_images WHERE product_id = $1 ORDER BY created_at ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.ProductImage
	for rows.Next() {
		var img models.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.StorageKey, &img.ImageURL,
			&img.ContentType, &img.Size, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (db *PostgresDB) insertTier(ctx context.Context, tier *models.PricingTier) error {
	if tier.ID == "" {
		tier.ID = uuid.NewString()
	}
	now := db.now().UTC()
	tier.CreatedAt, tier.UpdatedAt = now, now
	_, err := db.q.ExecContext(ctx, `
		INSERT INTO pricing_tiers (id, product_id, duration_unit, base_price, max_period, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tier.ID, tier.ProductID, tier.DurationUnit, tier.BasePrice, tier.MaxPeriod, tier.CreatedAt, tier.UpdatedAt)
	if isUniqueViolation(err) {
		return product.ErrDuplicateTier
	}
	return err
}

// UpsertPricingTier inserts or replaces the tier keyed by (product_id, duration_unit)
func (db *PostgresDB) UpsertPricingTier(ctx context.Context, tier *models.PricingTier) error {
	if tier.ID == "" {
		tier.ID = uuid.NewString()
	}
	now := db.now().UTC()
	return db.q.QueryRowContext(ctx, `
		INSERT INTO pricing_tiers (id, product_id, duration_unit, base_price, max_period, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (product_id, duration_unit) DO UPDATE SET
			base_price = EXCLUDED.base_price,
			max_period = EXCLUDED.max_period,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		tier.ID, tier.ProductID, tier.DurationUnit, tier.BasePrice, tier.MaxPeriod, now).
		Scan(&tier.ID, &tier.CreatedAt, &tier.UpdatedAt)
}

// DeletePricingTier removes the tier of a product for unit
func (db *PostgresDB) DeletePricingTier(ctx context.Context, productID string, unit models.DurationUnit) error {
	return expectRow(db.q.ExecContext(ctx,
		`DELETE FROM pricing_tiers WHERE product_id = $1 AND duration_unit = $2`, productID, unit))
}

func (db *PostgresDB) listTiers(ctx context.Context, productID string) ([]models.PricingTier, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, product_id, duration_unit, base_price, max_period, created_at, updated_at
		FROM pricing_tiers WHERE product_id = $1 ORDER BY duration_unit ASC, base_price ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.PricingTier
	for rows.Next() {
		var t models.PricingTier
		if err := rows.Scan(&t.ID, &t.ProductID, &t.DurationUnit, &t.BasePrice, &t.MaxPeriod,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// AddUnavailablePeriod inserts a period
func (db *PostgresDB) AddUnavailablePeriod(ctx context.Context, period *models.UnavailablePeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	period.CreatedAt = db.now().UTC()
	_, err := db.q.ExecContext(ctx, `
		INSERT INTO unavailable_periods (id, product_id, is_range, single_date, range_start, range_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		period.ID, period.ProductID, period.IsRange,
		period.SingleDate, period.RangeStart, period.RangeEnd, period.CreatedAt)
	return err
}

// DeleteUnavailablePeriod removes one period of a product
func (db *PostgresDB) DeleteUnavailablePeriod(ctx context.Context, productID, periodID string) error {
	return expectRow(db.q.ExecContext(ctx,
		`DELETE FROM unavailable_periods WHERE id = $1 AND product_id = $2`, periodID, productID))
}

// CountCoveringPeriods counts the periods of a product that block date
func (db *PostgresDB) CountCoveringPeriods(ctx context.Context, productID string, date time.Time) (int64, error) {
	var count int64
	err := db.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM unavailable_periods
		WHERE product_id = $1
		  AND ((NOT is_range AND single_date = $2::date)
		    OR (is_range AND range_start <= $2::date AND range_end >= $2::date))`,
		productID, models.DateOf(date).Format(models.DateLayout)).Scan(&count)
	return count, err
}

// ListUnavailablePeriods retrieves every period of a product
func (db *PostgresDB) ListUnavailablePeriods(ctx context.Context, productID string) ([]models.UnavailablePeriod, error) {
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, product_id, is_range, single_date, range_start, range_end, created_at
		FROM unavailable_periods WHERE product_id = $1
		ORDER BY range_start DESC NULLS LAST, single_date DESC NULLS LAST`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []models.UnavailablePeriod
	for rows.Next() {
		var u models.UnavailablePeriod
		if err := rows.Scan(&u.ID, &u.ProductID, &u.IsRange, &u.SingleDate, &u.RangeStart, &u.RangeEnd,
			&u.CreatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, u)
	}
	return periods, rows.Err()
}

func (db *PostgresDB) IncrementViews(ctx context.Context, id string) error {
	return expectRow(db.q.ExecContext(ctx,
		`UPDATE products SET views_count = views_count + 1 WHERE id = $1`, id))
}

func (db *PostgresDB) IncrementRentals(ctx context.Context, id string) error {
	return expectRow(db.q.ExecContext(ctx,
		`UPDATE products SET rental_count = rental_count + 1 WHERE id = $1`, id))
}

// SwapAverageRating writes rating only if the row is still at version
func (db *PostgresDB) SwapAverageRating(ctx context.Context, id string, version int64, rating float64) (bool, error) {
	return swapped(db.q.ExecContext(ctx, `
		UPDATE products SET average_rating = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		rating, db.now().UTC(), id, version))
}

// SwapStatus writes status, message and timestamp only if the row is still at version
func (db *PostgresDB) SwapStatus(ctx context.Context, id string, version int64, status models.ProductStatus, message *string, at time.Time) (bool, error) {
	return swapped(db.q.ExecContext(ctx, `
		UPDATE products SET status = $1, status_message = $2, status_updated_at = $3,
			version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		status, message, at, id, version))
}

// InTx runs fn inside one transaction; nested calls reuse the outer one
func (db *PostgresDB) InTx(ctx context.Context, fn func(product.Store) error) error {
	if _, nested := db.q.(*sql.Tx); nested {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&PostgresDB{conn: db.conn, q: tx, now: db.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func expectRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return nil
}

func swapped(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
