package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-picker/internal/domain/coupon"
	"github.com/xenking/coupon-picker/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
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

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no catalog files given: pass one or more .json.gz paths")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)

	slog.Info("ingesting catalog files", slog.Int("files", len(files)))

	records := make(chan coupon.Coupon, batchSize)

	// A writer failure cancels the decoders so they never block on a send
	// nobody will receive.
	ingestCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ingestCtx)
	for _, f := range files {
		g.Go(decodeFile(gctx, f, records))
	}

	done := make(chan error, 1)
	go func() {
		err := writeCoupons(ingestCtx, repo, records)
		if err != nil {
			cancel()
		}
		done <- err
	}()

	parseErr := g.Wait()
	close(records)
	writeErr := <-done

	if writeErr != nil {
		return errors.Wrap(writeErr, "write coupons")
	}
	if parseErr != nil {
		return errors.Wrap(parseErr, "decode catalog files")
	}
	return nil
}

// decodeFile streams one gzipped JSON-lines catalog and sends every parsed
// record to out. Malformed lines abort the whole file.
func decodeFile(ctx context.Context, path string, out chan<- coupon.Coupon) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var (
			lineNo  int
			scanner = bufio.NewScanner(gz)
		)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}

			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			c, err := parseRecord(line)
			if err != nil {
				return errors.Wrapf(err, "parse %s line %d", path, lineNo)
			}

			select {
			case out <- *c:
			case <-ctx.Done():
				return ctx.Err()
			}

			if lineNo%progressEvery == 0 {
				slog.Info("decode progress", slog.String("file", path), slog.Int("lines", lineNo))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("decode complete", slog.String("file", path), slog.Int("lines", lineNo))
		return nil
	}
}

// parseRecord decodes a single catalog line into a coupon.
func parseRecord(data []byte) (*coupon.Coupon, error) {
	var (
		c              coupon.Coupon
		rawEligibility jx.Raw
	)

	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			c.Code = s
			return err
		case "description":
			s, err := d.Str()
			c.Description = s
			return err
		case "discountType":
			s, err := d.Str()
			c.DiscountType = coupon.DiscountType(s)
			return err
		case "discountValue":
			v, err := decodeDecimal(d)
			c.DiscountValue = v
			return err
		case "maxDiscountAmount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			if err != nil {
				return err
			}
			c.MaxDiscountAmount = &v
			return nil
		case "startDate":
			t, err := decodeTime(d)
			c.StartDate = t
			return err
		case "endDate":
			t, err := decodeTime(d)
			c.EndDate = t
			return err
		case "usageLimitPerUser":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			if err != nil {
				return err
			}
			c.UsageLimitPerUser = &n
			return nil
		case "eligibility":
			raw, err := d.Raw()
			rawEligibility = raw
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}

	if len(rawEligibility) > 0 {
		if err := json.Unmarshal(rawEligibility, &c.Eligibility); err != nil {
			return nil, errors.Wrap(err, "decode eligibility")
		}
	}

	if c.Code == "" {
		return nil, errors.New("missing coupon code")
	}
	if c.DiscountType != coupon.DiscountFlat && c.DiscountType != coupon.DiscountPercent {
		return nil, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
	if c.EndDate.Before(c.StartDate) {
		return nil, errors.Errorf("coupon %s: endDate precedes startDate", c.Code)
	}
	return &c, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// writeCoupons drains records, screens duplicate codes and flushes batches.
// The bloom filter drops repeated codes cheaply; the database's ON CONFLICT
// clause catches the rare false negative and pre-existing rows.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, records <-chan coupon.Coupon) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	batch := make([]coupon.Coupon, 0, batchSize)

	var received, skipped, inserted int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := repo.Import(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "import batch")
		}
		inserted += n
		batch = batch[:0]
		return nil
	}

	for c := range records {
		received++
		if seen.TestString(c.Code) {
			skipped++
			continue
		}
		seen.AddString(c.Code)

		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("write complete",
		slog.Int64("received", received),
		slog.Int64("duplicates_skipped", skipped),
		slog.Int64("inserted", inserted),
	)
	return nil
}
