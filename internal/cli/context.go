// Package cli provides the clipper command-line interface.
package cli

import (
	"github.com/menucollect/clipper/internal/app"
	"github.com/spf13/cobra"
)

// globalApp holds the initialized application between PersistentPreRunE and
// PersistentPostRun.
var globalApp *app.Application

// SetApp stores the Application for command handlers.
func SetApp(_ *cobra.Command, a *app.Application) {
	globalApp = a
}

// GetApp retrieves the Application initialized for this invocation.
func GetApp() *app.Application {
	return globalApp
}
