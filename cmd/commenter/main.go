// Command commenter runs the Commenter backend: the HTTP API, database
// migrations, seed data and account administration.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/commenter/backend/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("commenter exited", "error", err)
		os.Exit(1)
	}
}
