package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/database"
)

// bookingTables are cleared in dependency order. The hotel catalog is kept.
var bookingTables = []string{
	"payment_audits",
	"bookings",
}

func main() {
	var (
		dbURLFlag string
		force     bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&force, "force", false, "Allow running when ENVIRONMENT=production")
	flag.Parse()

	_ = godotenv.Load()

	if os.Getenv("ENVIRONMENT") == "production" && !force {
		log.Fatal("refusing to clear booking data in production without -force")
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database. Truncating booking tables...")

	if _, err := db.Exec(`TRUNCATE TABLE payment_audits, bookings`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Booking data cleared. Post-clear row counts:")
	for _, t := range bookingTables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
