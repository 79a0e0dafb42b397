package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront-cart/internal/adapter/storage"
	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/core/service"
	"github.com/rl1809/storefront-cart/internal/port"
)

const (
	totalSessions   = 50
	sharedAdders    = 100
	queueSize       = 1000
	stressKeyPrefix = "stress-"
)

// staticCatalog serves two fixed variants so the run needs only Redis.
type staticCatalog struct{}

func (staticCatalog) LookupVariant(ctx context.Context, productID, size string) (*domain.Variant, error) {
	switch productID {
	case "jean":
		return &domain.Variant{ProductID: productID, Size: size, Name: "Jean", Price: decimal.RequireFromString("29.99")}, nil
	case "shirt":
		return &domain.Variant{ProductID: productID, Size: size, Name: "Shirt", Price: decimal.RequireFromString("15.50")}, nil
	}
	return nil, port.ErrVariantNotFound
}

func main() {
	ctx := context.Background()
	log := logrus.New()
	log.Level = logrus.WarnLevel

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	defer rdb.Close()

	redisAdapter := storage.NewRedisAdapter(rdb, time.Hour)
	sessions := service.NewSessionManager(redisAdapter, log, 0)
	orderService := service.NewOrderService(redisAdapter, queueSize)
	defer orderService.Close()

	// Drain the order queue in background
	var queued atomic.Int32
	go func() {
		for range orderService.GetOrderQueue() {
			queued.Add(1)
		}
	}()

	runID := uuid.NewString()[:8]
	var placed, duplicates, failed atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalSessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id := fmt.Sprintf("%s%s-%d", stressKeyPrefix, runID, n)
			sess, err := sessions.Get(ctx, id)
			if err != nil {
				failed.Add(1)
				return
			}

			requestID := uuid.NewString()
			for attempt := 0; attempt < 2; attempt++ {
				err = sess.Do(func(s *service.Session) error {
					if err := s.AddProduct(ctx, staticCatalog{}, "jean", "M", 2); err != nil {
						return err
					}
					if err := s.AddProduct(ctx, staticCatalog{}, "shirt", "S", 1); err != nil {
						return err
					}
					ok, err := s.Flow.GoToStep(domain.StepConfirm)
					if err != nil {
						return err
					}
					if !ok {
						return service.ErrStepGateRejected
					}
					_, err = orderService.PlaceOrder(ctx, s, requestID, domain.Contact{Name: id})
					return err
				})

				switch {
				case err == nil:
					placed.Add(1)
				case errors.Is(err, service.ErrDuplicateRequest):
					duplicates.Add(1)
				default:
					failed.Add(1)
				}
			}
			sessions.Drop(ctx, id)
		}(i)
	}
	wg.Wait()

	// Many writers on one session must serialize.
	sharedID := fmt.Sprintf("%s%s-shared", stressKeyPrefix, runID)
	shared, err := sessions.Get(ctx, sharedID)
	if err != nil {
		log.WithError(err).Fatal("failed to open shared session")
	}
	for i := 0; i < sharedAdders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shared.Do(func(s *service.Session) error {
				return s.AddProduct(ctx, staticCatalog{}, "jean", "M", 1)
			})
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	stored, err := redisAdapter.LoadCart(ctx, sharedID)
	if err != nil {
		log.WithError(err).Fatal("failed to load shared cart")
	}
	storedCount := 0
	for _, item := range stored {
		storedCount += item.Quantity
	}
	sessions.Drop(ctx, sharedID)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Sessions:          %d\n", totalSessions)
	fmt.Printf("Orders placed:     %d\n", placed.Load())
	fmt.Printf("Orders queued:     %d\n", queued.Load())
	fmt.Printf("Duplicates:        %d\n", duplicates.Load())
	fmt.Printf("Failed:            %d\n", failed.Load())
	fmt.Printf("Shared cart:       %d in memory, %d in redis\n", shared.Cart.Count(), storedCount)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	if placed.Load() == totalSessions && duplicates.Load() == totalSessions && failed.Load() == 0 {
		fmt.Printf("PASS: every session placed exactly one order\n")
	} else {
		fmt.Printf("FAIL: expected %d placed/%d duplicate/0 failed\n", totalSessions, totalSessions)
	}

	if shared.Cart.Count() == sharedAdders && storedCount == sharedAdders {
		fmt.Printf("PASS: shared cart holds %d units\n", sharedAdders)
	} else {
		fmt.Printf("FAIL: expected %d units in shared cart\n", sharedAdders)
	}
}
