package main

import (
	"context"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/callboard"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

func main() {
	err := config.Validate()
	if err != nil {
		logging.Logger.Fatal("invalid configuration", zap.String("error", err.Error()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := callboard.NewApp(ctx)
	if err != nil {
		logging.Logger.Fatal("failed to create callboard app", zap.String("error", err.Error()))
	}

	err = app.Run(ctx)
	if err != nil {
		logging.Logger.Fatal("callboard stopped with error", zap.String("error", err.Error()))
	}

	_ = logging.Logger.Sync()
}
