// cmd/tools/migrate/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/database"
)

func main() {
	dir := flag.String("dir", "db/migrations", "Directory with migration files")
	flag.Parse()

	command := "up"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config load failed: %v\n", err)
		os.Exit(1)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("postgres connection failed: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		fmt.Printf("goose dialect: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "up":
		err = goose.Up(pg.DB, *dir)
	case "down":
		err = goose.Down(pg.DB, *dir)
	case "status":
		err = goose.Status(pg.DB, *dir)
	case "version":
		err = goose.Version(pg.DB, *dir)
	default:
		fmt.Printf("unknown command %q (want up, down, status, or version)\n", command)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("migration %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("migration %s complete\n", command)
}
