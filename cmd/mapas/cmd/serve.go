package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the records API over HTTP",
	Long: `Serve exposes records, edits and reports as a JSON API. With auth enabled,
viewers log in against the users sheet and unit viewers only see and edit
their own maps; otherwise every request acts as the administrator.

Examples:
  mapas serve --address 127.0.0.1:8080
  MAPAS_AUTH_ENABLED=true MAPAS_AUTH_USERS_PATH=usuarios.csv mapas serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("address", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().Bool("debug", false, "gin debug mode")

	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
	viper.BindPFlag("server.debug", serveCmd.Flags().Lookup("debug"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := a.authenticator(ctx)
	if err != nil {
		return err
	}

	srv := server.New(&a.cfg.Server, a.service, auth, a.log)
	return srv.Run(ctx)
}

// authenticator loads the users sheet when auth is enabled. A nil result
// leaves the API open to the administrator.
func (a *app) authenticator(ctx context.Context) (server.Authenticator, error) {
	if !a.cfg.Auth.Enabled {
		a.log.Warn("Authentication disabled; every request acts as the administrator")
		return nil, nil
	}
	src, err := parsers.NewSource(&a.cfg.Auth.Users)
	if err != nil {
		return nil, err
	}
	grid, err := src.FetchGrid(ctx)
	if err != nil {
		return nil, err
	}
	users := directory.ParseUsers(grid)
	a.log.WithField("units", len(users.Users)).Info("Loaded users")
	return users, nil
}
