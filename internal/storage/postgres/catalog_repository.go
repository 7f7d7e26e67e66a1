package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const variantColumns = `id, product_id, sku, name, price, active, created_at, updated_at`

type catalogRepository struct {
	q querier
}

// CreateProduct сохраняет продукт вместе с вариантами.
func (r catalogRepository) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, slug, name, description, category, published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Slug, product.Name, product.Description, product.Category,
		product.Published, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validationf("product %s already exists", product.ID)
		}
		return wrapErr("insert product", err)
	}

	for _, v := range product.Variants {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO variants (`+variantColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			v.ID, product.ID, v.SKU, v.Name, v.Price, v.Active, v.CreatedAt, v.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.Validationf("variant %s already exists", v.ID)
			}
			return wrapErr("insert variant", err)
		}
	}
	return nil
}

func (r catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, slug, name, description, category, published, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Category, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, wrapErr("select product", err)
	}

	variants, err := r.loadVariants(ctx, `WHERE v.product_id = $1`, id)
	if err != nil {
		return domain.Product{}, err
	}
	p.Variants = variants
	return p, nil
}

// ListProducts возвращает продукты по имени; варианты подгружаются одним запросом.
func (r catalogRepository) ListProducts(ctx context.Context, publishedOnly bool) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, slug, name, description, category, published, created_at, updated_at
		FROM products
		WHERE published OR NOT $1
		ORDER BY name, id
	`, publishedOnly)
	if err != nil {
		return nil, wrapErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	index := make(map[string]int)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Category, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, wrapErr("scan product", err)
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate products", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	variants, err := r.loadVariants(ctx, `JOIN products p ON p.id = v.product_id WHERE p.published OR NOT $1`, publishedOnly)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	return products, nil
}

func (r catalogRepository) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	var v domain.Variant
	err := r.q.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = $1`, id).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, wrapErr("select variant", err)
	}
	return v, nil
}

func (r catalogRepository) UpdateVariantPrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (domain.Variant, error) {
	var v domain.Variant
	err := r.q.QueryRowContext(ctx, `
		UPDATE variants
		SET price = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+variantColumns,
		id, price, at,
	).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, wrapErr("update variant price", err)
	}
	return v, nil
}

func (r catalogRepository) loadVariants(ctx context.Context, filter string, args ...any) ([]domain.Variant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT v.id, v.product_id, v.sku, v.name, v.price, v.active, v.created_at, v.updated_at
		FROM variants v `+filter+`
		ORDER BY v.price, v.id
	`, args...)
	if err != nil {
		return nil, wrapErr("load variants", err)
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, wrapErr("scan variant", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate variants", err)
	}
	return variants, nil
}

var _ domain.CatalogRepository = catalogRepository{}
