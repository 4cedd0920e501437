package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/errors"
)

var (
	optionsJSON    bool
	optEventos     []string
	optMotivos     []string
	optDestinos    []string
	optExercicio   string
	usersFrom      string
	usersAdminMail string
	usersAdminPass string
	newPassword    string
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show the option lists of the create form",
	Long: `Options prints the events, units, motives and destinations offered when
creating a map, and the current fiscal year. They come from the auxiliary
sheet when auxiliar.enabled is set and from the records otherwise.`,
	Args: cobra.NoArgs,
	RunE: runOptions,
}

var optionsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the option lists of the auxiliary sheet",
	Long: `Set writes the event, motive and destination lists and the fiscal year
through the Apps-Script backend. Lists that are not given keep their
current values. Administrator only.

Example:
  mapas options set --evento Curso --evento Missão --exercicio 2026`,
	Args: cobra.NoArgs,
	RunE: runOptionsSet,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the unit logins",
}

var usersSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the unit logins from a users sheet export",
	Long: `Set reads a users sheet export (unit, password, e-mail, phone from the
second row on, admin e-mail in G2 and admin password in H2) and writes it
through the Apps-Script backend. Administrator only.

Example:
  mapas users set --from usuarios.csv`,
	Args: cobra.NoArgs,
	RunE: runUsersSet,
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the password of the current viewer",
	Long: `Password changes the admin password, or the unit password with --as-om.

Example:
  mapas --as-om OM-A password --new "s3nha"`,
	Args: cobra.NoArgs,
	RunE: runPassword,
}

func init() {
	rootCmd.AddCommand(optionsCmd, usersCmd, passwordCmd)
	optionsCmd.AddCommand(optionsSetCmd)
	usersCmd.AddCommand(usersSetCmd)

	optionsCmd.Flags().BoolVar(&optionsJSON, "json", false, "print the options as JSON")

	optionsSetCmd.Flags().StringArrayVar(&optEventos, "evento", nil, "event (repeatable)")
	optionsSetCmd.Flags().StringArrayVar(&optMotivos, "motivo", nil, "return motive (repeatable)")
	optionsSetCmd.Flags().StringArrayVar(&optDestinos, "destino", nil, "destination (repeatable)")
	optionsSetCmd.Flags().StringVar(&optExercicio, "exercicio", "", "current fiscal year")

	usersSetCmd.Flags().StringVar(&usersFrom, "from", "", "users sheet export (required)")
	usersSetCmd.Flags().StringVar(&usersAdminMail, "admin-email", "", "replace the admin e-mail")
	usersSetCmd.Flags().StringVar(&usersAdminPass, "admin-password", "", "replace the admin password")
	usersSetCmd.MarkFlagRequired("from")

	passwordCmd.Flags().StringVar(&newPassword, "new", "", "new password (required)")
	passwordCmd.MarkFlagRequired("new")
}

func runOptions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state(ctx)
	if err != nil {
		return err
	}
	aux, err := a.service.Options(ctx, st)
	if err != nil {
		return err
	}

	if optionsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(aux)
	}
	writeOptions(cmd.OutOrStdout(), aux)
	return nil
}

func writeOptions(w io.Writer, aux *directory.Auxiliar) {
	fmt.Fprintf(w, "Exercício: %s\n", aux.ExercicioCorrente)
	for _, list := range []struct {
		label  string
		values []string
	}{
		{"Eventos", aux.Eventos},
		{"OMs", aux.OMs},
		{"Motivos", aux.Motivos},
		{"Destinos", aux.Destinos},
	} {
		fmt.Fprintf(w, "%s: %s\n", list.label, strings.Join(list.values, ", "))
	}
}

func runOptionsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state(ctx)
	if err != nil {
		return err
	}
	aux, err := a.service.Options(ctx, st)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("evento") {
		aux.Eventos = optEventos
	}
	if flags.Changed("motivo") {
		aux.Motivos = optMotivos
	}
	if flags.Changed("destino") {
		aux.Destinos = optDestinos
	}
	if flags.Changed("exercicio") {
		aux.ExercicioCorrente = optExercicio
	}

	if err := a.service.UpdateConfig(ctx, st, aux); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Opções atualizadas (exercício %s, %d eventos).\n",
		strings.TrimSpace(aux.ExercicioCorrente), len(aux.Eventos))
	return nil
}

func runUsersSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := parsers.NewSource(&parsers.SourceConfig{
		Kind:     parsers.SourceFile,
		Path:     usersFrom,
		Encoding: a.cfg.Source.Encoding,
	})
	if err != nil {
		return err
	}
	grid, err := src.FetchGrid(ctx)
	if err != nil {
		return err
	}
	users := directory.ParseUsers(grid)
	if usersAdminMail != "" {
		users.AdminEmail = usersAdminMail
	}
	if usersAdminPass != "" {
		users.AdminPassword = usersAdminPass
	}
	if len(users.Users) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "users", usersFrom, nil).
			WithSuggestion("the export needs unit and password columns from the second row on")
	}

	if err := a.service.UpdateUsers(ctx, dashboard.NewState(a.viewer()), users); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d logins atualizados.\n", len(users.Users))
	return nil
}

func runPassword(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	viewer := a.viewer()
	if err := a.service.ChangePassword(ctx, dashboard.NewState(viewer), newPassword); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Senha de %s alterada.\n", viewer.Name)
	return nil
}
