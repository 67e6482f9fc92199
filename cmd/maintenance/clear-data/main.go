package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
)

// Child tables first so the listing reads in dependency order
var transactionalTables = []string{
	"payment_audits",
	"tickets",
	"payments",
	"passengers",
	"bookings",
	"audit_logs",
	"auth_tokens",
	"refresh_tokens",
}

var catalogTables = []string{
	"schedules",
	"routes",
	"ships",
	"ports",
	"users",
}

func main() {
	var dbURLFlag string
	var all, confirm bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&all, "all", false, "also clear users and the catalog (ports, ships, routes, schedules)")
	flag.BoolVar(&confirm, "yes", false, "skip the production safety check")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	// This avoids having to pass secrets on the command line.
	_ = godotenv.Load()

	if os.Getenv("ENVIRONMENT") == "production" && !confirm {
		log.Fatal("refusing to clear a production database without -yes")
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := transactionalTables
	if all {
		tables = append(append([]string{}, transactionalTables...), catalogTables...)
	}

	fmt.Printf("Connected to database. Truncating %d tables...\n", len(tables))

	truncateSQL := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Data cleared successfully (tables truncated, identities reset).")

	// Verify by printing row counts for each table
	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
