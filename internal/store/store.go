// Package store keeps the product catalog the worker attaches images to.
// It runs on sqlite (modernc.org/sqlite) or postgres (pgx) and keeps an
// in-memory copy of every product it has read or written.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

var ErrNotFound = fmt.Errorf("store: %w", model.ErrProductNotFound)

//go:embed migrations
var migrations embed.FS

type Store struct {
	db     *sql.DB
	driver string

	mx    sync.RWMutex
	cache map[int64]model.Product
}

// Open connects to the database described by cfg and applies pending
// migrations.
func Open(ctx context.Context, cfg model.Store) (*Store, error) {
	var dialect goose.Dialect
	var dir string
	switch cfg.Driver {
	case model.StoreDriverSQLite, "":
		cfg.Driver = model.StoreDriverSQLite
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	case model.StoreDriverPostgres:
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == model.StoreDriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(ctx, db, dialect, dir); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		driver: cfg.Driver,
		cache:  make(map[int64]model.Product),
	}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		slog.DebugContext(ctx, "migration applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration", r.Duration,
		)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// FetchProduct reads the product from the database. When the read fails the
// cached copy, if any, is returned together with the error.
func (s *Store) FetchProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return s.CachedProduct(id), err
	}
	s.remember(p)
	return &p, nil
}

func (s *Store) CachedProduct(id int64) *model.Product {
	s.mx.RLock()
	defer s.mx.RUnlock()
	p, ok := s.cache[id]
	if !ok {
		return nil
	}
	p.Images = append([]model.Image(nil), p.Images...)
	return &p
}

// UpdateProduct replaces the name and the image list of an existing product.
func (s *Store) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE products SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
			p.Name, p.ID,
		)
		if err != nil {
			return fmt.Errorf("executing sql update failed: %w", err)
		}
		ra, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("fetching affected rows failed: %w", err)
		}
		if ra != 1 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM product_images WHERE product_id = ?`), p.ID); err != nil {
			return fmt.Errorf("executing sql delete failed: %w", err)
		}
		return s.insertImages(ctx, tx, p.ID, p.Images)
	})
	if err != nil {
		return model.Product{}, err
	}

	stored, err := s.get(ctx, p.ID)
	if err != nil {
		return model.Product{}, err
	}
	s.remember(stored)
	return stored, nil
}

// Add creates a product without images.
func (s *Store) Add(ctx context.Context, name string) (model.Product, error) {
	if strings.TrimSpace(name) == "" {
		return model.Product{}, errors.New("product name must not be empty")
	}
	var id int64
	row := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO products (name) VALUES (?) RETURNING id`), name)
	if err := row.Scan(&id); err != nil {
		return model.Product{}, fmt.Errorf("executing sql insert failed: %w", err)
	}
	p := model.Product{ID: id, Name: name, Images: []model.Image{}}
	s.remember(p)
	return p, nil
}

// List returns all products ordered by id.
func (s *Store) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning product failed: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range products {
		images, err := s.images(ctx, s.db, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Images = images
	}
	return products, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT id, name FROM products WHERE id = ?`), id)
		err := row.Scan(&p.ID, &p.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("executing sql query failed: %w", err)
		}
		p.Images, err = s.images(ctx, tx, id)
		return err
	})
	return p, err
}

func (s *Store) images(ctx context.Context, q querier, productID int64) ([]model.Image, error) {
	rows, err := q.QueryContext(ctx,
		s.rebind(`SELECT media_id, src, name FROM product_images WHERE product_id = ? ORDER BY position`),
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.Src, &img.Name); err != nil {
			return nil, fmt.Errorf("scanning image failed: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *Store) insertImages(ctx context.Context, tx *sql.Tx, productID int64, images []model.Image) error {
	for pos, img := range images {
		_, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO product_images (product_id, position, media_id, src, name) VALUES (?, ?, ?, ?, ?)`),
			productID, pos, img.ID, img.Src, img.Name,
		)
		if err != nil {
			return fmt.Errorf("executing sql insert failed: %w", err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "rolling back transaction failed", "error", err)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

func (s *Store) remember(p model.Product) {
	s.mx.Lock()
	defer s.mx.Unlock()
	p.Images = append([]model.Image(nil), p.Images...)
	s.cache[p.ID] = p
}

// rebind turns ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != model.StoreDriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r != '?' {
			sb.WriteRune(r)
			continue
		}
		n++
		sb.WriteString("$" + strconv.Itoa(n))
	}
	return sb.String()
}
