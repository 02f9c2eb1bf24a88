package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"powermeter-server/internal/config"
	"powermeter-server/internal/db"
	"powermeter-server/internal/logging"
	"powermeter-server/internal/migrate"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command>\n  up      apply pending schema migrations\n  status  list applied migration versions\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, "powermeter-migrate"))

	conn, dialect, err := db.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	ctx := context.Background()
	switch os.Args[1] {
	case "up", "migrate":
		if err := migrate.Run(ctx, conn, dialect); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	case "status":
		versions, err := migrate.Applied(ctx, conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			os.Exit(1)
		}
		if len(versions) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, v := range versions {
			fmt.Println(v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
