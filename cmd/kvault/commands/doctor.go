package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/kvault/internal/errors"
)

// CheckResult is the outcome of one doctor check.
type CheckResult struct {
	Name       string
	Status     string
	Message    string
	Suggestion string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, authentication and vault access",
		Long: `Verify that kvault can reach the configured vault.

This command checks:
- Configuration file validity
- Vault endpoint resolution
- Read access to secrets and keys`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var results []CheckResult

			app.Config.Logger.Info("Checking kvault configuration...")
			if err := app.Config.LoadIfExists(); err != nil {
				results = append(results, failed("configuration", err))
				displayResults(cmd.OutOrStdout(), results)
				return fmt.Errorf("configuration check failed")
			}
			results = append(results, CheckResult{Name: "configuration", Status: "healthy", Message: app.Config.Path})

			secrets, err := app.SecretClient()
			if err != nil {
				results = append(results, failed("vault", err))
				displayResults(cmd.OutOrStdout(), results)
				return fmt.Errorf("vault check failed")
			}
			results = append(results, CheckResult{Name: "vault", Status: "healthy", Message: secrets.VaultURL()})

			if _, err := secrets.ListNames(ctx); err != nil {
				results = append(results, failed("secrets", dserrors.VaultError("list secrets", err)))
			} else {
				results = append(results, CheckResult{Name: "secrets", Status: "healthy", Message: "list permitted"})
			}

			keys, err := app.KeyClient()
			if err == nil {
				_, err = keys.ListNames(ctx)
			}
			if err != nil {
				results = append(results, failed("keys", dserrors.VaultError("list keys", err)))
			} else {
				results = append(results, CheckResult{Name: "keys", Status: "healthy", Message: "list permitted"})
			}

			displayResults(cmd.OutOrStdout(), results)

			healthy := 0
			for _, r := range results {
				if r.Status == "healthy" {
					healthy++
				}
			}
			if healthy < len(results) {
				return fmt.Errorf("%d of %d checks failed", len(results)-healthy, len(results))
			}
			app.Config.Logger.Info("All checks passed")
			return nil
		},
	}
}

func failed(name string, err error) CheckResult {
	r := CheckResult{Name: name, Status: "error", Message: err.Error()}
	if dserrors.IsRetryable(err) {
		r.Status = "transient"
	}
	var userErr dserrors.UserError
	if errors.As(err, &userErr) {
		r.Message = userErr.Message
		if userErr.Details != "" {
			r.Message += ": " + userErr.Details
		}
		r.Suggestion = userErr.Suggestion
	}
	var cfgErr dserrors.ConfigError
	if errors.As(err, &cfgErr) {
		r.Message = cfgErr.Message
		r.Suggestion = cfgErr.Suggestion
	}
	return r
}

func displayResults(out io.Writer, results []CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHECK\tSTATUS\tDETAILS")
	for _, r := range results {
		status := "✓ " + r.Status
		if r.Status != "healthy" {
			status = "✗ " + r.Status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Message)
	}
	_ = w.Flush()

	for _, r := range results {
		if r.Suggestion != "" {
			_, _ = fmt.Fprintf(out, "  💡 %s: %s\n", r.Name, r.Suggestion)
		}
	}
}
