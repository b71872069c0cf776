package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/database"
	"github.com/staybook/hotel-booking-backend/internal/services"
)

func main() {
	var (
		dbURLFlag string
		dryRun    bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&dryRun, "dry-run", false, "List hotels that need a Stripe price without creating anything")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Minimal configs without loading the full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	currency := strings.ToLower(os.Getenv("STRIPE_CURRENCY"))
	if currency == "" {
		currency = "usd"
	}
	stripeService := services.NewStripeService(config.StripeConfig{
		SecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		Currency:          currency,
		Timeout:           30 * time.Second,
		MaxNetworkRetries: 2,
		APIBaseURL:        os.Getenv("STRIPE_API_BASE"),
	}, logger)
	if !dryRun && !stripeService.IsConfigured() {
		log.Fatal("STRIPE_SECRET_KEY is not set")
	}

	hotels := database.NewHotelRepository(db)
	ctx := context.Background()

	pending, err := hotels.ListWithoutStripePrice(ctx)
	if err != nil {
		log.Fatalf("failed to list hotels: %v", err)
	}

	fmt.Printf("%d hotel(s) without a Stripe price (mode: %s)\n", len(pending), stripeService.Mode())
	if dryRun {
		for _, hotel := range pending {
			fmt.Printf("  would provision %-40s %s %.2f/night\n", hotel.Name, strings.ToUpper(currency), hotel.Price)
		}
		return
	}

	var failed int
	for _, hotel := range pending {
		productID, priceID, err := stripeService.CreateProductAndPrice(ctx, hotel)
		if err != nil {
			failed++
			fmt.Printf("  ✗ %s: %v\n", hotel.Name, err)
			continue
		}
		if err := hotels.SetStripeIDs(ctx, hotel.ID, productID, priceID); err != nil {
			failed++
			fmt.Printf("  ✗ %s: created %s / %s but could not store them (record by hand before rerunning): %v\n", hotel.Name, productID, priceID, err)
			continue
		}
		fmt.Printf("  ✓ %s → %s\n", hotel.Name, priceID)
	}

	fmt.Printf("Done: %d provisioned, %d failed\n", len(pending)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
