package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/shoaibmehmood243/lensciaga/db"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/auth"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/storage/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	Images      []string        `json:"images"`
}

var samplePromos = []promo.Code{
	{Code: "SAVE10", Discount: 10},
	{Code: "WELCOME15", Discount: 15, MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(20))},
	{Code: "SUMMER25", Discount: 25, MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(50))},
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL   string
		productsFile  string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file, the bundled catalog when empty")
	flag.StringVar(&adminEmail, "admin-email", os.Getenv("SEED_ADMIN_EMAIL"), "first admin e-mail (or SEED_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "first admin password (or SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminEmail, adminPassword string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromos(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}

	if adminEmail != "" {
		if err := seedAdmin(ctx, pool, adminEmail, adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	}

	return nil
}

// seedProducts loads the catalog into an empty products table. A catalog
// that already holds products is left alone.
func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	repo := postgres.NewProductRepository(pool)

	existing, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	if len(existing) > 0 {
		slog.Info("catalog already populated, skipping products", slog.Int("count", len(existing)))
		return nil
	}

	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("inserting products", slog.Int("count", len(products)))

	for _, pj := range products {
		p := &product.Product{
			Name:        pj.Name,
			Description: pj.Description,
			Price:       pj.Price,
			Category:    product.Category(pj.Category),
			Quantity:    pj.Quantity,
			Images:      pj.Images,
		}
		if err := product.Validate(p); err != nil {
			return errors.Wrapf(err, "product %q", pj.Name)
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %q", pj.Name)
		}

		slog.Info("inserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedPromos(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample promo codes")

	n, err := postgres.NewPromoRepository(pool).Upsert(ctx, samplePromos)
	if err != nil {
		return err
	}

	slog.Info("upserted promo codes", slog.Int64("count", n))
	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	// Only Register is used; no token is ever signed with this secret.
	svc, err := auth.NewService(postgres.NewAdminRepository(pool), auth.Config{Secret: []byte(uuid.NewString())})
	if err != nil {
		return err
	}

	a, err := svc.Register(ctx, email, password)
	switch {
	case errors.Is(err, auth.ErrAdminExists):
		slog.Info("admin already exists", slog.String("email", email))
		return nil
	case err != nil:
		return err
	}

	slog.Info("created admin", slog.Int64("id", a.ID), slog.String("email", a.Email))
	return nil
}
