package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

var (
	// ErrNotFound is returned when a key does not exist in its collection.
	ErrNotFound = errors.New("catalog: not found")
	// ErrKeyExists is returned when creating an item whose key is already taken.
	ErrKeyExists = errors.New("catalog: key already exists")
)

// Store is the Catalog Store contract: a snapshot read plus per-collection writes.
type Store interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)

	CreateService(ctx context.Context, s Service) (Service, error)
	UpdateService(ctx context.Context, s Service) (Service, error)
	DeleteService(ctx context.Context, key string) error

	ListAddons(ctx context.Context, serviceKey string) ([]Addon, error)
	CreateAddon(ctx context.Context, a Addon) (Addon, error)
	UpdateAddon(ctx context.Context, a Addon) (Addon, error)
	DeleteAddon(ctx context.Context, key string) error

	CreateBundle(ctx context.Context, b Bundle) (Bundle, error)
	UpdateBundle(ctx context.Context, b Bundle) (Bundle, error)
	DeleteBundle(ctx context.Context, key string) error
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PgStore implements Store on Postgres.
type PgStore struct {
	DB db.Querier
}

const serviceColumns = `key, name, blurb, category, badge, min_term, sla, popular, includes,
	base_one_time_cents, base_monthly_cents, sort_order, created_at, updated_at`

const addonColumns = `key, name, description, short, badge, popular, COALESCE(service_id, ''),
	applicable_services, price_one_time_cents, price_monthly_cents, created_at, updated_at`

const bundleColumns = `key, name, description, includes, savings,
	price_one_time_cents, price_monthly_cents, created_at, updated_at`

// LoadSnapshot reads all three collections.
func (s PgStore) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	services, err := s.listServices(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	addons, err := s.ListAddons(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	bundles, err := s.listBundles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Services: services, Addons: addons, Bundles: bundles}, nil
}

func (s PgStore) listServices(ctx context.Context) ([]Service, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY sort_order ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Service, error) { return scanService(r) })
	if err != nil {
		return nil, fmt.Errorf("scan services: %w", err)
	}
	return out, nil
}

func scanService(row rowScanner) (Service, error) {
	var svc Service
	err := row.Scan(&svc.Key, &svc.Name, &svc.Blurb, &svc.Category, &svc.Badge, &svc.MinTerm, &svc.SLA,
		&svc.Popular, &svc.Includes, &svc.OneTimeCents, &svc.MonthlyCents, &svc.SortOrder, &svc.CreatedAt, &svc.UpdatedAt)
	if svc.Includes == nil {
		svc.Includes = []string{}
	}
	return svc, err
}

// CreateService inserts a new service. An existing key yields ErrKeyExists.
func (s PgStore) CreateService(ctx context.Context, in Service) (Service, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO services (key, name, blurb, category, badge, min_term, sla, popular, includes,
			base_one_time_cents, base_monthly_cents, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+serviceColumns,
		in.Key, in.Name, in.Blurb, in.Category, in.Badge, in.MinTerm, in.SLA, in.Popular, nonNil(in.Includes),
		in.OneTimeCents, in.MonthlyCents, in.SortOrder)
	out, err := scanService(row)
	if err != nil {
		return Service{}, writeErr("create service", err)
	}
	return out, nil
}

// UpdateService replaces a service's fields. A missing key yields ErrNotFound.
func (s PgStore) UpdateService(ctx context.Context, in Service) (Service, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE services SET name = $2, blurb = $3, category = $4, badge = $5, min_term = $6, sla = $7,
			popular = $8, includes = $9, base_one_time_cents = $10, base_monthly_cents = $11,
			sort_order = $12, updated_at = NOW()
		WHERE key = $1
		RETURNING `+serviceColumns,
		in.Key, in.Name, in.Blurb, in.Category, in.Badge, in.MinTerm, in.SLA, in.Popular, nonNil(in.Includes),
		in.OneTimeCents, in.MonthlyCents, in.SortOrder)
	out, err := scanService(row)
	if err != nil {
		return Service{}, writeErr("update service", err)
	}
	return out, nil
}

// DeleteService removes a service.
func (s PgStore) DeleteService(ctx context.Context, key string) error {
	return s.deleteByKey(ctx, "services", key)
}

// ListAddons returns add-ons ordered by name, optionally only those applicable to serviceKey.
func (s PgStore) ListAddons(ctx context.Context, serviceKey string) ([]Addon, error) {
	query := `SELECT ` + addonColumns + ` FROM addons`
	args := []any{}
	if serviceKey != "" {
		query += ` WHERE service_id = $1 OR $1 = ANY(applicable_services) OR 'all' = ANY(applicable_services)
			OR (cardinality(applicable_services) = 0 AND service_id IS NULL)`
		args = append(args, serviceKey)
	}
	query += ` ORDER BY name ASC`
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Addon, error) { return scanAddon(r) })
	if err != nil {
		return nil, fmt.Errorf("scan addons: %w", err)
	}
	return out, nil
}

func scanAddon(row rowScanner) (Addon, error) {
	var a Addon
	err := row.Scan(&a.Key, &a.Name, &a.Description, &a.Short, &a.Badge, &a.Popular, &a.ServiceID,
		&a.ApplicableServices, &a.OneTimeCents, &a.MonthlyCents, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateAddon inserts a new add-on. An existing key yields ErrKeyExists.
func (s PgStore) CreateAddon(ctx context.Context, in Addon) (Addon, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO addons (key, name, description, short, badge, popular, service_id, applicable_services,
			price_one_time_cents, price_monthly_cents)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		RETURNING `+addonColumns,
		in.Key, in.Name, in.Description, in.Short, in.Badge, in.Popular, in.ServiceID, in.Applicability(),
		in.OneTimeCents, in.MonthlyCents)
	out, err := scanAddon(row)
	if err != nil {
		return Addon{}, writeErr("create addon", err)
	}
	return out, nil
}

// UpdateAddon replaces an add-on's fields. A missing key yields ErrNotFound.
func (s PgStore) UpdateAddon(ctx context.Context, in Addon) (Addon, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE addons SET name = $2, description = $3, short = $4, badge = $5, popular = $6,
			service_id = NULLIF($7, ''), applicable_services = $8, price_one_time_cents = $9,
			price_monthly_cents = $10, updated_at = NOW()
		WHERE key = $1
		RETURNING `+addonColumns,
		in.Key, in.Name, in.Description, in.Short, in.Badge, in.Popular, in.ServiceID, in.Applicability(),
		in.OneTimeCents, in.MonthlyCents)
	out, err := scanAddon(row)
	if err != nil {
		return Addon{}, writeErr("update addon", err)
	}
	return out, nil
}

// DeleteAddon removes an add-on.
func (s PgStore) DeleteAddon(ctx context.Context, key string) error {
	return s.deleteByKey(ctx, "addons", key)
}

func (s PgStore) listBundles(ctx context.Context) ([]Bundle, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+bundleColumns+` FROM bundles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Bundle, error) { return scanBundle(r) })
	if err != nil {
		return nil, fmt.Errorf("scan bundles: %w", err)
	}
	return out, nil
}

func scanBundle(row rowScanner) (Bundle, error) {
	var b Bundle
	err := row.Scan(&b.Key, &b.Name, &b.Description, &b.Includes, &b.Savings,
		&b.OneTimeCents, &b.MonthlyCents, &b.CreatedAt, &b.UpdatedAt)
	if b.Includes == nil {
		b.Includes = []string{}
	}
	return b, err
}

// CreateBundle inserts a new bundle. An existing key yields ErrKeyExists.
func (s PgStore) CreateBundle(ctx context.Context, in Bundle) (Bundle, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO bundles (key, name, description, includes, savings, price_one_time_cents, price_monthly_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+bundleColumns,
		in.Key, in.Name, in.Description, nonNil(in.Includes), in.Savings, in.OneTimeCents, in.MonthlyCents)
	out, err := scanBundle(row)
	if err != nil {
		return Bundle{}, writeErr("create bundle", err)
	}
	return out, nil
}

// UpdateBundle replaces a bundle's fields. A missing key yields ErrNotFound.
func (s PgStore) UpdateBundle(ctx context.Context, in Bundle) (Bundle, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE bundles SET name = $2, description = $3, includes = $4, savings = $5,
			price_one_time_cents = $6, price_monthly_cents = $7, updated_at = NOW()
		WHERE key = $1
		RETURNING `+bundleColumns,
		in.Key, in.Name, in.Description, nonNil(in.Includes), in.Savings, in.OneTimeCents, in.MonthlyCents)
	out, err := scanBundle(row)
	if err != nil {
		return Bundle{}, writeErr("update bundle", err)
	}
	return out, nil
}

// DeleteBundle removes a bundle.
func (s PgStore) DeleteBundle(ctx context.Context, key string) error {
	return s.deleteByKey(ctx, "bundles", key)
}

func (s PgStore) deleteByKey(ctx context.Context, table, key string) error {
	// table is always one of the three literals above
	tag, err := s.DB.Exec(ctx, `DELETE FROM `+table+` WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func writeErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrKeyExists
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
