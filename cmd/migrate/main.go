package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"waprofiles/internal/constants"
	"waprofiles/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", constants.DefaultDatabasePath, "Path to the database file")
	status := flag.Bool("status", false, "List migrations and whether they are applied, without applying")
	flag.Parse()

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if *status {
		if err := printStatus(ctx, db); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if len(applied) == 0 {
		fmt.Println("Database schema is up to date")
		return
	}
	for _, m := range applied {
		fmt.Printf("Applied migration %03d: %s\n", m.Version, m.Name)
	}
	fmt.Println("Database schema updated. You can now restart waprofiles.")
}

func printStatus(ctx context.Context, db *sql.DB) error {
	all, err := migrations.Load()
	if err != nil {
		return err
	}
	applied, err := migrations.AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range all {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%03d %-40s %s\n", m.Version, m.Name, state)
	}
	return nil
}
