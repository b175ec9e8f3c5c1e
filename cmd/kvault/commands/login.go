package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/kvault/internal/config"
	"github.com/systmms/kvault/internal/credential"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/internal/secure"
)

// NewLoginCommand creates the login command, which stores a service
// principal secret in the OS keyring.
func NewLoginCommand(app *App) *cobra.Command {
	var (
		tenantID string
		clientID string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a service principal client secret in the OS keyring",
		Long: `Read a client secret from stdin and store it in the OS keyring.

With auth.method set to client_secret and no auth.client_secret in
kvault.yaml, kvault looks the secret up in the keyring under the same
tenant and client ID.

Examples:
  kvault login --tenant $TENANT --client-id $APP_ID < secret.txt
  pass show azure/sp | kvault login --tenant $TENANT --client-id $APP_ID`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Fall back to the configured service principal
			if tenantID == "" || clientID == "" {
				if err := app.Config.LoadIfExists(); err != nil {
					return err
				}
				if tenantID == "" {
					tenantID = app.Config.Definition.Auth.TenantID
				}
				if clientID == "" {
					clientID = app.Config.Definition.Auth.ClientID
				}
			}

			value, err := secure.ReadValue(cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer value.Destroy()

			if value.Len() == 0 {
				return dserrors.UserError{
					Message:    "No client secret on stdin",
					Suggestion: "Pipe the secret in, e.g. 'kvault login --tenant T --client-id C < secret.txt'",
				}
			}
			secret, err := value.Reveal()
			if err != nil {
				return err
			}

			if err := credential.StoreClientSecret(app.Keyring, tenantID, clientID, secret); err != nil {
				return err
			}
			app.Config.Logger.Info("Stored client secret for %s", credential.KeyringUser(tenantID, clientID))
			if app.Config.Definition == nil || app.Config.Definition.Auth.Method != config.AuthClientSecret {
				app.Config.Logger.Warn("Set auth.method: client_secret in kvault.yaml to use it")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Azure AD tenant ID")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Application (client) ID")
	return cmd
}
