package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
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

	return seedCoupons(ctx, postgres.NewCouponRepository(pool))
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding demo coupons")

	now := time.Now().UTC().Truncate(24 * time.Hour)
	year := now.AddDate(1, 0, 0)
	cap50 := decimal.NewFromInt(50)
	oneUse := 1
	threeUses := 3

	coupons := []coupon.Coupon{
		{
			Code:          "WELCOME10",
			Description:   "10% off your first order",
			DiscountType:  coupon.DiscountPercent,
			DiscountValue: decimal.NewFromInt(10),
			StartDate:     now,
			EndDate:       year,
			UsageLimitPerUser: &oneUse,
			Eligibility: coupon.Eligibility{
				FirstOrderOnly: true,
			},
		},
		{
			Code:          "SAVE20",
			Description:   "$20 off orders over $100",
			DiscountType:  coupon.DiscountFlat,
			DiscountValue: decimal.NewFromInt(20),
			StartDate:     now,
			EndDate:       year,
			Eligibility: coupon.Eligibility{
				MinCartValue: decimalPtr(decimal.NewFromInt(100)),
			},
		},
		{
			Code:              "VIP15",
			Description:       "15% off for gold and platinum members, up to $50",
			DiscountType:      coupon.DiscountPercent,
			DiscountValue:     decimal.NewFromInt(15),
			MaxDiscountAmount: &cap50,
			StartDate:         now,
			EndDate:           year,
			UsageLimitPerUser: &threeUses,
			Eligibility: coupon.Eligibility{
				AllowedUserTiers: []string{"gold", "platinum"},
			},
		},
		{
			Code:          "ELECTRO25",
			Description:   "25% off carts containing electronics",
			DiscountType:  coupon.DiscountPercent,
			DiscountValue: decimal.NewFromInt(25),
			StartDate:     now,
			EndDate:       now.AddDate(0, 1, 0),
			Eligibility: coupon.Eligibility{
				ApplicableCategories: []string{"electronics"},
				ExcludedCategories:   []string{"gift-cards"},
			},
		},
		{
			Code:          "LOYAL5",
			Description:   "$5 off for returning customers",
			DiscountType:  coupon.DiscountFlat,
			DiscountValue: decimal.NewFromInt(5),
			StartDate:     now,
			EndDate:       year,
			Eligibility: coupon.Eligibility{
				MinOrdersPlaced:  intPtr(5),
				MinLifetimeSpend: decimalPtr(decimal.NewFromInt(500)),
			},
		},
	}

	for i := range coupons {
		c := &coupons[i]

		created, err := repo.Create(ctx, c)
		if err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				slog.Info("coupon already seeded", slog.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}

		slog.Info("seeded coupon",
			slog.String("code", created.Code),
			slog.String("description", created.Description),
		)
	}

	return nil
}

func intPtr(v int) *int { return &v }

func decimalPtr(v decimal.Decimal) *decimal.Decimal { return &v }
