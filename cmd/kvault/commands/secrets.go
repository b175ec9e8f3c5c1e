package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/spf13/cobra"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/internal/logging"
	"github.com/systmms/kvault/internal/secure"
	"github.com/systmms/kvault/pkg/keyvault"
)

// NewSecretsCommand creates the secrets command group.
func NewSecretsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Read, write and manage Key Vault secrets",
		Long: `Manage secrets in an Azure Key Vault.

Secret names are case-sensitive. Hierarchical names use "--" as a section
separator, so "Db--Password" belongs to section "Db".

Examples:
  kvault secrets list --section Db
  kvault secrets get Db--Password
  echo -n "hunter2" | kvault secrets set Db--Password --stdin --safe
  kvault secrets delete Db--Password --wait --purge`,
	}

	cmd.AddCommand(
		newSecretsListCommand(app),
		newSecretsGetCommand(app),
		newSecretsValuesCommand(app),
		newSecretsSetCommand(app),
		newSecretsDeleteCommand(app),
		newSecretsPurgeCommand(app),
		newSecretsRecoverCommand(app),
	)
	for _, sub := range cmd.Commands() {
		switch sub.Name() {
		case "get", "set", "delete":
			sub.ValidArgsFunction = completeSecretNames(app)
		}
	}
	return cmd
}

func newSecretsListCommand(app *App) *cobra.Command {
	var (
		section string
		deleted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleted && section != "" {
				return dserrors.UserError{
					Message:    "--section cannot be combined with --deleted",
					Suggestion: "List deleted secrets without a section filter",
				}
			}

			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var names []string
			switch {
			case deleted:
				names, err = client.ListDeletedNames(ctx)
			case section != "":
				var secrets []azsecrets.Secret
				secrets, err = client.GetSection(ctx, section)
				for _, s := range secrets {
					names = append(names, s.ID.Name())
				}
			default:
				names, err = client.ListNames(ctx)
			}
			if err != nil {
				return dserrors.VaultError("list secrets", err)
			}

			printLines(cmd.OutOrStdout(), sortedCopy(names))
			return nil
		},
	}

	cmd.Flags().StringVar(&section, "section", "", `Only list secrets under this section (prefix before "--")`)
	cmd.Flags().BoolVar(&deleted, "deleted", false, "List soft-deleted secrets")
	return cmd
}

func newSecretsGetCommand(app *App) *cobra.Command {
	var (
		ifExists   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print a secret value",
		Long: `Print the current value of a secret to stdout.

Examples:
  export DB_PASSWORD=$(kvault secrets get Db--Password)
  kvault secrets get Optional--Flag --if-exists
  kvault secrets get Db--Password --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			var secret *azsecrets.Secret
			if ifExists {
				secret, err = client.GetIfExists(ctx, name)
			} else {
				var s azsecrets.Secret
				s, err = client.Get(ctx, name)
				secret = &s
			}
			if err != nil {
				return dserrors.VaultError("get secret", err)
			}
			if secret == nil {
				app.Config.Logger.Debug("Secret %s does not exist", name)
				return nil
			}

			if !jsonOutput {
				_, err = fmt.Fprint(cmd.OutOrStdout(), deref(secret.Value))
				return err
			}
			return writeJSON(cmd.OutOrStdout(), secretView(secret))
		},
	}

	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "Print nothing instead of failing when the secret is missing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value and metadata as JSON")
	return cmd
}

func newSecretsValuesCommand(app *App) *cobra.Command {
	var sequential bool

	cmd := &cobra.Command{
		Use:   "values NAME...",
		Short: "Print several secret values as a JSON object",
		Long: `Fetch several secrets at once. Missing secrets map to null.

Examples:
  kvault secrets values Db--User Db--Password Api--Key`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			mode := keyvault.FetchConcurrent
			if sequential {
				mode = keyvault.FetchSequential
			}
			values, err := client.GetValuesIfExists(ctx, args, mode)
			if err != nil {
				return dserrors.VaultError("get secrets", err)
			}
			return writeJSON(cmd.OutOrStdout(), values)
		},
	}

	cmd.Flags().BoolVar(&sequential, "sequential", false, "Fetch one secret at a time")
	return cmd
}

func newSecretsSetCommand(app *App) *cobra.Command {
	var (
		fromStdin bool
		safe      bool
	)

	cmd := &cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Write a secret value",
		Long: `Write a new version of a secret.

Pass the value with --stdin to keep it out of shell history. With --safe a
new version is only written when the value differs from the current one.

Examples:
  kvault secrets set Api--Url https://api.example.com
  pbpaste | kvault secrets set Api--Key --stdin --safe`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if fromStdin == (len(args) == 2) {
				return dserrors.UserError{
					Message:    "Provide the value either as an argument or with --stdin",
					Suggestion: "Use --stdin for sensitive values",
				}
			}

			var value *secure.Value
			if fromStdin {
				v, err := secure.ReadValue(cmd.InOrStdin())
				if err != nil {
					return err
				}
				value = v
			} else {
				value = secure.NewValue([]byte(args[1]))
			}
			defer value.Destroy()

			plain, err := value.Reveal()
			if err != nil {
				return err
			}

			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app.Config.Logger.Debug("Writing %s = %s (%d bytes)", name, logging.Secret(plain), value.Len())

			if safe {
				changed, err := client.SafeSetValue(ctx, name, plain)
				if err != nil {
					return setError(app, err, plain)
				}
				if changed {
					app.Config.Logger.Info("Updated %s", name)
				} else {
					app.Config.Logger.Info("%s is unchanged", name)
				}
				return nil
			}

			secret, err := client.SetValue(ctx, name, plain)
			if err != nil {
				return setError(app, err, plain)
			}
			version := ""
			if secret.ID != nil {
				version = secret.ID.Version()
			}
			app.Config.Logger.Info("Set %s (version %s)", name, version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the value from stdin")
	cmd.Flags().BoolVar(&safe, "safe", false, "Only write when the value changed")
	return cmd
}

// setError logs the raw service error with the value scrubbed; response
// bodies may echo the request.
func setError(app *App, err error, value string) error {
	app.Config.Logger.Debug("Set failed: %s", logging.Redact(err.Error(), []string{value}))
	return dserrors.VaultError("set secret", err)
}

func newSecretsDeleteCommand(app *App) *cobra.Command {
	var (
		wait     bool
		ifExists bool
		purge    bool
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "delete [NAME]",
		Short: "Soft-delete a secret",
		Long: `Soft-delete a secret, or every secret with --all.

Examples:
  kvault secrets delete Old--Key --wait
  kvault secrets delete Old--Key --purge
  kvault secrets delete --all --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return dserrors.UserError{
					Message:    "Provide a secret name or --all",
					Suggestion: "kvault secrets delete NAME",
				}
			}
			if all && (ifExists || purge) {
				return dserrors.UserError{Message: "--all cannot be combined with --if-exists or --purge"}
			}

			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if all {
				if err := client.DeleteAll(ctx, wait); err != nil {
					return dserrors.VaultError("delete secrets", err)
				}
				app.Config.Logger.Info("Deleted all secrets")
				return nil
			}

			name := args[0]
			switch {
			case purge:
				if err := client.DeleteAndPurge(ctx, name); err != nil {
					return dserrors.VaultError("delete and purge secret", err)
				}
				app.Config.Logger.Info("Deleted and purged %s", name)
			case ifExists:
				deleted, err := client.DeleteIfExists(ctx, name, wait)
				if err != nil {
					return dserrors.VaultError("delete secret", err)
				}
				if !deleted {
					app.Config.Logger.Info("%s does not exist", name)
					return nil
				}
				app.Config.Logger.Info("Deleted %s", name)
			default:
				if _, err := client.Delete(ctx, name, wait); err != nil {
					return dserrors.VaultError("delete secret", err)
				}
				app.Config.Logger.Info("Deleted %s", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the soft-delete has completed")
	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "Succeed when the secret is missing")
	cmd.Flags().BoolVar(&purge, "purge", false, "Wait for the delete, then purge permanently")
	cmd.Flags().BoolVar(&all, "all", false, "Delete every secret in the vault")
	return cmd
}

func newSecretsPurgeCommand(app *App) *cobra.Command {
	var (
		ifDeleted  bool
		allDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "purge [NAME]",
		Short: "Permanently remove a soft-deleted secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if allDeleted == (len(args) == 1) {
				return dserrors.UserError{
					Message:    "Provide a secret name or --all-deleted",
					Suggestion: "kvault secrets list --deleted",
				}
			}

			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if allDeleted {
				if err := client.PurgeAllDeleted(ctx); err != nil {
					return dserrors.VaultError("purge secrets", err)
				}
				app.Config.Logger.Info("Purged all deleted secrets")
				return nil
			}

			name := args[0]
			if ifDeleted {
				purged, err := client.PurgeIfDeleted(ctx, name)
				if err != nil {
					return dserrors.VaultError("purge secret", err)
				}
				if !purged {
					app.Config.Logger.Info("%s is not in a deleted state", name)
					return nil
				}
			} else if err := client.Purge(ctx, name); err != nil {
				return dserrors.VaultError("purge secret", err)
			}
			app.Config.Logger.Info("Purged %s", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifDeleted, "if-deleted", false, "Succeed when the secret is not soft-deleted")
	cmd.Flags().BoolVar(&allDeleted, "all-deleted", false, "Purge every soft-deleted secret")
	return cmd
}

func newSecretsRecoverCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recover NAME",
		Short: "Restore a soft-deleted secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.SecretClient()
			if err != nil {
				return err
			}
			if _, err := client.Recover(cmd.Context(), args[0]); err != nil {
				return dserrors.VaultError("recover secret", err)
			}
			app.Config.Logger.Info("Recovered %s", args[0])
			return nil
		},
	}
}

type secretOutput struct {
	Name        string            `json:"name"`
	Version     string            `json:"version,omitempty"`
	Value       string            `json:"value"`
	ContentType string            `json:"content_type,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

func secretView(s *azsecrets.Secret) secretOutput {
	out := secretOutput{
		Value:       deref(s.Value),
		ContentType: deref(s.ContentType),
	}
	if s.ID != nil {
		out.Name = s.ID.Name()
		out.Version = s.ID.Version()
	}
	if s.Attributes != nil {
		out.Enabled = s.Attributes.Enabled
	}
	if len(s.Tags) > 0 {
		out.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = deref(v)
		}
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func printLines(w io.Writer, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
