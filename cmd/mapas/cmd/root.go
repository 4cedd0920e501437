package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gratuity-map-service/cmd/mapas/config"
)

var (
	cfgFile  string
	verbose  bool
	viewerOM string
	version  = "dev"
	commit   = "unknown"
	date     = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapas",
	Short: "Gratuity map records tool",
	Long: `Mapas reads the gratuity map control sheet, reports on it and applies
edits through the configured backing store (Apps-Script endpoint, SQLite
database or the Google Sheets API).

Examples:
  mapas records --status devolvido
  mapas report --group-by unit --format xlsx --output relatorio.xlsx
  mapas update "3/2026 - 4 Bda/OM-A" --set "Nr DIEx Remessa 4 Bda=77"
  mapas serve --config mapas.toml
  mapas config init`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, TOML or YAML (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&viewerOM, "as-om", "", "act as the given unit instead of the administrator")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if err := config.Bind(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing configuration: %s\n", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
