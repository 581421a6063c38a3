package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photokeep/photosync/pkg/logging"
)

// ContextWithSignals creates a context that is cancelled when the process
// receives an interrupt or termination signal.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// commandContext returns the command's context with the app logger attached,
// so engine code logging through the context uses the CLI's configuration.
func (a *App) commandContext(cmd *cobra.Command) context.Context {
	return logging.WithLogger(cmd.Context(), a.logger)
}
