package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gulshop/storefront/internal/account"
	"github.com/gulshop/storefront/internal/catalog"
	"github.com/gulshop/storefront/internal/checkout"
	"github.com/gulshop/storefront/internal/config"
	"github.com/gulshop/storefront/internal/order"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[storefront] connect postgres: %v", err)
	}
	defer pool.Close()

	products := catalog.NewPGRepo(pool)
	orders := order.NewPGRepo(pool)
	accounts := account.NewService(account.NewPGRepo(pool))

	s := &server{
		products:  products,
		orders:    orders,
		accounts:  accounts,
		checkout:  checkout.NewService(products, orders),
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  24 * time.Hour,
	}

	r := newRouter(s, cfg.SessionSecret)
	log.Printf("storefront listening on %s", cfg.HTTPAddr)
	log.Fatal(r.Run(cfg.HTTPAddr))
}
