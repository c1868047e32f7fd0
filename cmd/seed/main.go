// cmd/seed loads a demo catalog into the configured store and prints a bearer
// token for local requests.
// Usage: go run ./cmd/seed [-token-only]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"sostrack/internal/config"
	"sostrack/internal/dto"
	"sostrack/internal/infra"
	"sostrack/internal/middleware"
	"sostrack/internal/repository"
	"sostrack/internal/router"
	"sostrack/internal/worker"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	tokenOnly := flag.Bool("token-only", false, "only print a token")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.JWTSecret != "" {
		tok, err := middleware.IssueToken(cfg.JWTSecret, "dev", "Developer", jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("sign token")
		}
		fmt.Println(tok)
	}
	if *tokenOnly {
		return
	}

	if cfg.StoreDriver != "postgres" {
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("seed only targets postgres")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}
	store := repository.NewGormStore(db, nil)
	defer store.Close()

	svcs := router.NewServices(cfg, store, worker.NewDispatcher(nil))
	ctx := context.Background()

	_, err = svcs.Categories.Create(ctx, dto.CreateCategoryRequest{
		Name:      "Gummies",
		SKUPrefix: "GUM",
		Containers: []dto.ContainerTemplateRequest{
			{Name: "4oz Pouch", WeightOz: decimal.NewFromInt(4), SKU: "4OZ", MinQuantity: intPtr(10)},
			{Name: "16oz Jar", WeightOz: decimal.NewFromInt(16), SKU: "16OZ", MinQuantity: intPtr(4)},
		},
	})
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		log.Fatal().Err(err).Msg("create category")
	}
	for _, flavor := range []string{"Blue Raz", "Watermelon", "Sour Apple"} {
		_, err := svcs.Products.Create(ctx, dto.CreateProductRequest{Category: "Gummies", Flavor: flavor})
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			log.Fatal().Err(err).Str("flavor", flavor).Msg("create product")
		}
	}
	log.Info().Msg("demo catalog ready")
}

func intPtr(n int) *int { return &n }
