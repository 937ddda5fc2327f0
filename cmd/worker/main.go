// Standalone finalize worker. Runs the same finalize service as the server's
// in-process pool, for deployments that scale the merge/verify work
// separately from the upload front end.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"sharefile/internal/logging"
	"sharefile/internal/server/config"
	"sharefile/internal/server/worker"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app, err := worker.NewApp(cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
