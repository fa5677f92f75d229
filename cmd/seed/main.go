// Package main provides a CLI tool for seeding a facility with demo stock
// and printing an admin token for the API.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"unitrack/internal/app"
	"unitrack/internal/core/types"
	"unitrack/internal/domain/auth"
	"unitrack/internal/domain/units"
	"unitrack/internal/infrastructure/config"
	"unitrack/pkg/logger"
)

const seedActor = "seed"

type demoProduct struct {
	name       string
	category   string
	quantity   int
	price      string
	receivedAt int // days ago
	expiresIn  int // days from now, 0 means untracked
}

var demoStock = []demoProduct{
	{name: "Widget", category: "hardware", quantity: 5, price: "2.50", receivedAt: 20},
	{name: "Widget", category: "hardware", quantity: 3, price: "2.75", receivedAt: 5},
	{name: "Saline Solution", category: "medical", quantity: 12, price: "4.10", receivedAt: 40, expiresIn: 12},
	{name: "Saline Solution", category: "medical", quantity: 8, price: "4.10", receivedAt: 3, expiresIn: 180},
	{name: "Gauze Pads", category: "medical", quantity: 4, price: "0.90", receivedAt: 60, expiresIn: -2},
	{name: "Insulin", category: "pharmacy", quantity: 2, price: "31.00", receivedAt: 7, expiresIn: 25},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Component:   "seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize dependencies", "error", err)
	}
	defer deps.Close(ctx)

	facility := os.Getenv("SEED_FACILITY")
	if facility == "" {
		facility = "demo-facility"
	}

	var stock []demoProduct
	if os.Getenv("SEED_DEMO_DATA") == "true" {
		stock = append(stock, demoStock...)
	}
	if n, _ := strconv.Atoi(os.Getenv("SEED_RANDOM_PRODUCTS")); n > 0 {
		seed, _ := strconv.ParseUint(os.Getenv("SEED_RANDOM_SEED"), 10, 64)
		stock = append(stock, randomStock(gofakeit.New(seed), n)...)
	}
	if err := seedStock(ctx, deps.Service, facility, stock, time.Now().UTC(), log); err != nil {
		log.Fatalw("failed to seed demo stock", "error", err)
	}

	token, expiresAt, err := adminToken(cfg)
	if err != nil {
		log.Fatalw("failed to issue admin token", "error", err)
	}

	log.Info("seeding completed successfully")
	fmt.Printf("facility: %s\ntoken (expires %s):\n%s\n", facility, expiresAt.Format(time.RFC3339), token)
}

// seedStock receives stock into facility. Operation ids are derived from
// the product and position, so rerunning with the same input replays
// instead of creating duplicate batches.
func seedStock(ctx context.Context, svc *units.Service, facility string, stock []demoProduct, now time.Time, log *logger.Logger) error {
	for i, p := range stock {
		price, err := types.NewMoneyFromString(p.price)
		if err != nil {
			return fmt.Errorf("price of %s: %w", p.name, err)
		}

		data := units.ProductData{
			ProductName:  p.name,
			Category:     p.category,
			Quantity:     p.quantity,
			PricePerUnit: price,
			ReceivedDate: now.AddDate(0, 0, -p.receivedAt),
			OperationID:  fmt.Sprintf("seed-%s-%02d-%s", facility, i, units.NormalizeName(p.name)),
		}
		if p.expiresIn != 0 {
			expiry := now.AddDate(0, 0, p.expiresIn)
			data.ExpiryDate = &expiry
		}

		res, err := svc.CreateUnits(ctx, data, facility, seedActor)
		if err != nil {
			return fmt.Errorf("seed %s: %w", p.name, err)
		}
		log.Infow("seeded batch",
			"product", p.name,
			"batch_id", res.Batch.BatchID,
			"units", len(res.Units),
			"replayed", res.Replayed,
		)
	}
	return nil
}

func adminToken(cfg *config.Config) (string, time.Time, error) {
	secret := cfg.JWT.Secret
	if secret == "" {
		secret = "dev-secret-change-me"
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: 24 * time.Hour,
	})
	return jwtService.GenerateAccessToken(auth.Identity{
		UserID:  "admin",
		Email:   os.Getenv("ADMIN_EMAIL"),
		IsAdmin: true,
	})
}
