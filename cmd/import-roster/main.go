// Command import-roster loads people and holidays into the database from CSV
// files. Rows without an activation code get one minted during import.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/atlasbank/greeting-engine/internal/config"
	"github.com/atlasbank/greeting-engine/internal/importer"
	"github.com/atlasbank/greeting-engine/internal/referral"
	"github.com/atlasbank/greeting-engine/internal/repository/postgres"
)

func main() {
	var (
		peoplePath   = flag.String("people", "", "path to the people CSV")
		holidaysPath = flag.String("holidays", "", "path to the holidays CSV")
		configPath   = flag.String("config", "config/config.yaml", "path to the config file")
	)
	flag.Parse()

	if *peoplePath == "" && *holidaysPath == "" {
		log.Fatal("nothing to do: pass -people and/or -holidays")
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	roster := postgres.NewRosterRepo(db)
	holidays := postgres.NewHolidayRepo(db)
	minter := referral.New(roster, cfg.Referral.CodeLength)
	im := importer.New(roster, holidays, minter)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *peoplePath != "" {
		f, err := os.Open(*peoplePath)
		if err != nil {
			log.Fatalf("open %s: %v", *peoplePath, err)
		}
		n, err := im.ImportPeople(ctx, f)
		f.Close()
		if err != nil {
			log.Fatalf("import people: %v", err)
		}
		log.Printf("People imported: %d", n)
	}

	if *holidaysPath != "" {
		f, err := os.Open(*holidaysPath)
		if err != nil {
			log.Fatalf("open %s: %v", *holidaysPath, err)
		}
		n, err := im.ImportHolidays(ctx, f)
		f.Close()
		if err != nil {
			log.Fatalf("import holidays: %v", err)
		}
		log.Printf("Holidays imported: %d", n)
	}
}
