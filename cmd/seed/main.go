package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/soaringjerry/intake/internal/config"
	dbstore "github.com/soaringjerry/intake/internal/db"
	"github.com/soaringjerry/intake/internal/questionnaire"
	"github.com/soaringjerry/intake/internal/services"
)

func main() {
	cfg := config.Load()
	file := flag.String("file", "", "path to the questionnaire YAML definition")
	dbPath := flag.String("db", cfg.SQLitePath, "sqlite database path")
	driver := flag.String("driver", cfg.SQLiteDriver, "sqlite driver: sqlite3 or sqlite")
	dryRun := flag.Bool("dry-run", false, "validate the definition without writing")
	flag.Parse()

	if *file == "" {
		die("--file is required")
	}
	def, err := questionnaire.LoadFile(*file)
	if err != nil {
		die("load definition: %v", err)
	}
	if *dryRun {
		fmt.Printf("%s: cycle %q with %d questions and %d phases\n", *file, def.Cycle.DisplayName, len(def.Questions), len(def.Phases))
		return
	}

	logger := log.New(os.Stderr, "[intake-seed] ", log.LstdFlags)
	ctx := context.Background()
	db, err := dbstore.Open(*driver, *dbPath)
	if err != nil {
		die("open database: %v", err)
	}
	defer db.Close()
	if _, err := dbstore.RunMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		die("migrate: %v", err)
	}
	store, err := dbstore.NewSQLiteStore(db, logger)
	if err != nil {
		die("store: %v", err)
	}

	seeder := services.Principal{ID: "seed", Role: services.RoleReviewer}
	res, err := questionnaire.Apply(ctx, def, seeder,
		services.NewCycleService(store, logger),
		services.NewQuestionService(store),
		services.NewPhaseService(store),
	)
	if err != nil {
		die("apply: %v", err)
	}
	fmt.Printf("created cycle %s (%s): %d questions, %d phases\n", res.Cycle.ID, res.Cycle.DisplayName, len(res.Questions), len(res.Phases))
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
