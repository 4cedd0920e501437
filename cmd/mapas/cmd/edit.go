package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
)

var (
	setValues     []string
	confirmDelete bool
	newMap        dashboard.NewMap
)

var diffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Show the change-set an edit would send",
	Long: `Diff applies --set assignments to the current values of a record and
prints the minimal change-set, without writing anything. Column names are
the header texts with line breaks removed.

Example:
  mapas diff "3/2026 - 4 Bda/OM-A" --set "Nr DIEx Remessa 4 Bda=77"`,
	Args: cobra.ExactArgs(1),
	RunE: runDiff,
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Write an edit of one record",
	Long: `Update builds the change-set of the --set assignments and sends it to the
backing store. An edit that changes nothing is reported and not sent.

Example:
  mapas update "3/2026 - 4 Bda/OM-A" --set "Situação=Pagamento autorizado"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new map",
	Long: `Create numbers a new map of the unit for the year of the last event day
and stores it with the initial status.

Example:
  mapas create --om OM-A --evento "Curso" --ult-dia 2026-05-01 --valor "1.500,00" --doc "BI 12"`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(diffCmd, updateCmd, createCmd, deleteCmd)

	for _, c := range []*cobra.Command{diffCmd, updateCmd} {
		c.Flags().StringArrayVarP(&setValues, "set", "s", nil, `column assignment "Column=value" (repeatable)`)
		c.MarkFlagRequired("set")
	}

	createCmd.Flags().StringVar(&newMap.Unit, "om", "", "unit (ignored with --as-om)")
	createCmd.Flags().StringVar(&newMap.Evento, "evento", "", "event (required)")
	createCmd.Flags().StringVar(&newMap.UltDiaEvento, "ult-dia", "", "last day of the event, yyyy-mm-dd or dd/mm/yyyy")
	createCmd.Flags().StringVar(&newMap.Valor, "valor", "", "value (required)")
	createCmd.Flags().StringVar(&newMap.DocAutoriza, "doc", "", "authorizing document (required)")
	createCmd.Flags().StringVar(&newMap.NrDiex, "nr-diex", "", "DIEx number")
	createCmd.Flags().StringVar(&newMap.DataDiex, "data-diex", "", "DIEx date")
	createCmd.Flags().StringVar(&newMap.Observacao, "obs", "", "notes")

	deleteCmd.Flags().BoolVar(&confirmDelete, "yes", false, "confirm the deletion")
}

// parseAssignments turns "Column=value" pairs into a map. The value may be
// empty; the column may not.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		col, value, ok := strings.Cut(p, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, errors.ValidationError(errors.CodeInvalidFormat, "set", p, nil).
				WithSuggestion(`use "Column=value"`)
		}
		out[col] = value
	}
	return out, nil
}

// editedValues applies assignments over the record's current values.
// Unknown columns are rejected with the closest known name in the error.
func editedValues(rec *models.Record, assignments map[string]string) (map[string]string, error) {
	edited := rec.Values()
	for col, value := range assignments {
		if _, ok := edited[col]; !ok {
			err := errors.ValidationError(errors.CodeMissingField, "column", col, nil)
			if near := matcher.Suggest(rec.Headers, col); near != "" {
				return nil, err.WithSuggestion(fmt.Sprintf("did you mean %q?", near))
			}
			return nil, err.WithSuggestion("columns: " + strings.Join(sortedKeys(edited), ", "))
		}
		edited[col] = value
	}
	return edited, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printChangeSet(w io.Writer, cs models.ChangeSet) {
	if cs.IsEmpty() {
		fmt.Fprintln(w, "Nenhuma alteração.")
		return
	}
	for _, k := range cs.Keys() {
		fmt.Fprintf(w, "  %s = %q\n", k, cs[k])
	}
}

func loadEdit(cmd *cobra.Command, id string) (*app, dashboard.State, map[string]string, error) {
	assignments, err := parseAssignments(setValues)
	if err != nil {
		return nil, dashboard.State{}, nil, err
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return nil, dashboard.State{}, nil, err
	}
	st, err := a.state(cmd.Context())
	if err != nil {
		a.Close()
		return nil, st, nil, err
	}
	rec, ok := st.Find(id)
	if !ok {
		a.Close()
		return nil, st, nil, errors.ValidationError(errors.CodeRecordMissing, "id", id, nil)
	}
	edited, err := editedValues(rec, assignments)
	if err != nil {
		a.Close()
		return nil, st, nil, err
	}
	return a, st, edited, nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, st, edited, err := loadEdit(cmd, args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	_, cs, err := a.service.Diff(st, args[0], edited)
	if err != nil {
		return err
	}
	printChangeSet(cmd.OutOrStdout(), cs)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, st, edited, err := loadEdit(cmd, args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	cs, err := a.service.Update(cmd.Context(), st, args[0], edited)
	if errors.IsNothingToUpdate(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "Nenhuma alteração.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mapa %s atualizado:\n", args[0])
	printChangeSet(cmd.OutOrStdout(), cs)
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state(cmd.Context())
	if err != nil {
		return err
	}
	req, err := a.service.Create(cmd.Context(), st, newMap)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mapa %s criado (%s).\n", req.Fields[models.FieldID], req.Fields[models.FieldSituacao])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !confirmDelete {
		return errors.ValidationError(errors.CodeMissingField, "yes", false, nil).
			WithSuggestion("pass --yes to delete the record")
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state(cmd.Context())
	if err != nil {
		return err
	}
	if err := a.service.Delete(cmd.Context(), st, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mapa %s excluído.\n", args[0])
	return nil
}
