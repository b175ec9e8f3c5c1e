package commands

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/spf13/cobra"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/pkg/keyvault"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// NewKeysCommand creates the keys command group.
func NewKeysCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage Key Vault keys and run cryptographic operations",
		Long: `Manage keys in an Azure Key Vault.

Cryptographic operations always use the key's current version, so they keep
working after a rotation. Binary input and output is base64 (standard
encoding).

Examples:
  kvault keys create signing --type RSA
  kvault keys encrypt data-key --alg RSA-OAEP --text "hello"
  kvault keys decrypt data-key --alg RSA-OAEP --data <base64> --output text
  kvault keys sign signing --alg RS256 --text "payload"`,
	}

	cmd.AddCommand(
		newKeysListCommand(app),
		newKeysGetCommand(app),
		newKeysCreateCommand(app),
		newKeysDeleteCommand(app),
		newKeysPurgeCommand(app),
		newKeysRecoverCommand(app),
		newKeysEncryptCommand(app),
		newKeysDecryptCommand(app),
		newKeysSignCommand(app),
		newKeysVerifyCommand(app),
		newKeysWrapCommand(app),
		newKeysUnwrapCommand(app),
	)
	for _, sub := range cmd.Commands() {
		switch sub.Name() {
		case "list", "create", "purge", "recover":
		default:
			sub.ValidArgsFunction = completeKeyNames(app)
		}
	}
	return cmd
}

func newKeysListCommand(app *App) *cobra.Command {
	var deleted bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var names []string
			if deleted {
				names, err = client.ListDeletedNames(ctx)
			} else {
				names, err = client.ListNames(ctx)
			}
			if err != nil {
				return dserrors.VaultError("list keys", err)
			}
			printLines(cmd.OutOrStdout(), sortedCopy(names))
			return nil
		},
	}

	cmd.Flags().BoolVar(&deleted, "deleted", false, "List soft-deleted keys")
	return cmd
}

type keyOutput struct {
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Type    string   `json:"kty,omitempty"`
	Ops     []string `json:"key_ops,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

func keyView(k azkeys.KeyBundle) keyOutput {
	var out keyOutput
	if k.Key != nil {
		if k.Key.KID != nil {
			out.Name = k.Key.KID.Name()
			out.Version = k.Key.KID.Version()
		}
		if k.Key.Kty != nil {
			out.Type = string(*k.Key.Kty)
		}
		for _, op := range k.Key.KeyOps {
			if op != nil {
				out.Ops = append(out.Ops, string(*op))
			}
		}
	}
	if k.Attributes != nil {
		out.Enabled = k.Attributes.Enabled
	}
	return out
}

func newKeysGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show the current version of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			key, err := client.Get(ctx, args[0])
			if err != nil {
				return dserrors.VaultError("get key", err)
			}
			return writeJSON(cmd.OutOrStdout(), keyView(key))
		},
	}
}

func newKeysCreateCommand(app *App) *cobra.Command {
	var keyType string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a key, or a new version of an existing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kty, err := parseChoice("key type", keyType, azkeys.PossibleKeyTypeValues())
			if err != nil {
				return err
			}

			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			key, err := client.Create(cmd.Context(), args[0], kty)
			if err != nil {
				return dserrors.VaultError("create key", err)
			}
			view := keyView(key)
			app.Config.Logger.Info("Created %s (version %s)", args[0], view.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyType, "type", string(azkeys.KeyTypeRSA), "Key type (RSA, EC, oct, RSA-HSM, EC-HSM, oct-HSM)")
	return cmd
}

func newKeysDeleteCommand(app *App) *cobra.Command {
	var (
		wait     bool
		ifExists bool
	)

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Soft-delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			if ifExists {
				deleted, err := client.DeleteIfExists(ctx, name, wait)
				if err != nil {
					return dserrors.VaultError("delete key", err)
				}
				if !deleted {
					app.Config.Logger.Info("%s does not exist", name)
					return nil
				}
			} else if _, err := client.Delete(ctx, name, wait); err != nil {
				return dserrors.VaultError("delete key", err)
			}
			app.Config.Logger.Info("Deleted %s", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the soft-delete has completed")
	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "Succeed when the key is missing")
	return cmd
}

func newKeysPurgeCommand(app *App) *cobra.Command {
	var ifDeleted bool

	cmd := &cobra.Command{
		Use:   "purge NAME",
		Short: "Permanently remove a soft-deleted key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			if ifDeleted {
				purged, err := client.PurgeIfDeleted(ctx, name)
				if err != nil {
					return dserrors.VaultError("purge key", err)
				}
				if !purged {
					app.Config.Logger.Info("%s is not in a deleted state", name)
					return nil
				}
			} else if err := client.Purge(ctx, name); err != nil {
				return dserrors.VaultError("purge key", err)
			}
			app.Config.Logger.Info("Purged %s", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifDeleted, "if-deleted", false, "Succeed when the key is not soft-deleted")
	return cmd
}

func newKeysRecoverCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recover NAME",
		Short: "Restore a soft-deleted key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			if _, err := client.Recover(cmd.Context(), args[0]); err != nil {
				return dserrors.VaultError("recover key", err)
			}
			app.Config.Logger.Info("Recovered %s", args[0])
			return nil
		},
	}
}

// payloadFlags are the input flags shared by the cryptographic commands.
type payloadFlags struct {
	alg       string
	text      string
	data      string
	textCodec string
}

func (p *payloadFlags) register(cmd *cobra.Command, withText, withEncoding bool) {
	cmd.Flags().StringVar(&p.alg, "alg", "", "Algorithm, e.g. RSA-OAEP-256 or RS256 (required)")
	cmd.Flags().StringVar(&p.data, "data", "", "Input bytes, base64 encoded")
	if withText {
		cmd.Flags().StringVar(&p.text, "text", "", "Input text")
	}
	if withEncoding {
		cmd.Flags().StringVar(&p.textCodec, "encoding", "utf-8", "Text encoding (utf-8, utf-16le, utf-16be)")
	}
	_ = cmd.MarkFlagRequired("alg")
}

func (p *payloadFlags) input(cmd *cobra.Command) ([]byte, error) {
	return inputBytes(p.text, p.data, cmd.Flags().Changed("text"), cmd.Flags().Changed("data"))
}

func (p *payloadFlags) encoding() (encoding.Encoding, error) {
	switch strings.ToLower(p.textCodec) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "utf-16le", "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	}
	return nil, dserrors.UserError{
		Message:    fmt.Sprintf("unknown text encoding %q", p.textCodec),
		Suggestion: "Use utf-8, utf-16le or utf-16be",
	}
}

func newKeysEncryptCommand(app *App) *cobra.Command {
	var p payloadFlags

	cmd := &cobra.Command{
		Use:   "encrypt NAME",
		Short: "Encrypt data with the current key version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("encryption algorithm", p.alg, azkeys.PossibleEncryptionAlgorithmValues())
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var result azkeys.KeyOperationResult
			if cmd.Flags().Changed("text") && !cmd.Flags().Changed("data") {
				enc, err := p.encoding()
				if err != nil {
					return err
				}
				result, err = client.EncryptText(ctx, args[0], alg, p.text, enc)
				if err != nil {
					return dserrors.VaultError("encrypt", err)
				}
			} else {
				plaintext, err := p.input(cmd)
				if err != nil {
					return err
				}
				result, err = client.Encrypt(ctx, args[0], alg, plaintext)
				if err != nil {
					return dserrors.VaultError("encrypt", err)
				}
			}
			if len(result.IV) > 0 || len(result.AuthenticationTag) > 0 {
				app.Config.Logger.Info("Decrypt with --iv %s --tag %s",
					base64.StdEncoding.EncodeToString(result.IV),
					base64.StdEncoding.EncodeToString(result.AuthenticationTag))
			}
			return printBase64(cmd, result.Result)
		},
	}

	p.register(cmd, true, true)
	return cmd
}

func newKeysDecryptCommand(app *App) *cobra.Command {
	var (
		p       payloadFlags
		output  string
		iv, tag string
	)

	cmd := &cobra.Command{
		Use:   "decrypt NAME",
		Short: "Decrypt data with the current key version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("encryption algorithm", p.alg, azkeys.PossibleEncryptionAlgorithmValues())
			if err != nil {
				return err
			}
			ciphertext, err := p.input(cmd)
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if iv != "" || tag != "" {
				return decryptWithIV(cmd, client, args[0], alg, &p, output, ciphertext, iv, tag)
			}

			switch output {
			case "text":
				enc, err := p.encoding()
				if err != nil {
					return err
				}
				text, err := client.DecryptText(ctx, args[0], alg, ciphertext, enc)
				if err != nil {
					return dserrors.VaultError("decrypt", err)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			case "base64":
				plaintext, err := client.Decrypt(ctx, args[0], alg, ciphertext)
				if err != nil {
					return dserrors.VaultError("decrypt", err)
				}
				return printBase64(cmd, plaintext)
			}
			return dserrors.UserError{
				Message:    fmt.Sprintf("unknown output format %q", output),
				Suggestion: "Use --output base64 or --output text",
			}
		},
	}

	p.register(cmd, false, true)
	cmd.Flags().StringVar(&output, "output", "base64", "Output format (base64, text)")
	cmd.Flags().StringVar(&iv, "iv", "", "Initialization vector from encrypt, base64 encoded (AES-GCM)")
	cmd.Flags().StringVar(&tag, "tag", "", "Authentication tag from encrypt, base64 encoded (AES-GCM)")
	return cmd
}

func decryptWithIV(cmd *cobra.Command, client *keyvault.KeyClient, name string, alg azkeys.EncryptionAlgorithm, p *payloadFlags, output string, ciphertext []byte, iv, tag string) error {
	ivBytes, err := decodeFlag("iv", iv)
	if err != nil {
		return err
	}
	tagBytes, err := decodeFlag("tag", tag)
	if err != nil {
		return err
	}

	plaintext, err := client.DecryptResult(cmd.Context(), name, alg, azkeys.KeyOperationResult{
		Result:            ciphertext,
		IV:                ivBytes,
		AuthenticationTag: tagBytes,
	})
	if err != nil {
		return dserrors.VaultError("decrypt", err)
	}

	switch output {
	case "base64":
		return printBase64(cmd, plaintext)
	case "text":
		enc, err := p.encoding()
		if err != nil {
			return err
		}
		text, err := enc.NewDecoder().Bytes(plaintext)
		if err != nil {
			return dserrors.UserError{Message: "Plaintext is not valid " + p.textCodec, Err: err}
		}
		_, err = cmd.OutOrStdout().Write(text)
		return err
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("unknown output format %q", output),
		Suggestion: "Use --output base64 or --output text",
	}
}

// digestFor hashes text with the hash the signature algorithm expects.
func digestFor(alg azkeys.SignatureAlgorithm, text string) []byte {
	switch {
	case strings.HasSuffix(string(alg), "384"):
		sum := sha512.Sum384([]byte(text))
		return sum[:]
	case strings.HasSuffix(string(alg), "512"):
		sum := sha512.Sum512([]byte(text))
		return sum[:]
	default:
		sum := sha256.Sum256([]byte(text))
		return sum[:]
	}
}

func (p *payloadFlags) digest(cmd *cobra.Command, alg azkeys.SignatureAlgorithm) ([]byte, error) {
	if cmd.Flags().Changed("text") && !cmd.Flags().Changed("data") {
		return digestFor(alg, p.text), nil
	}
	return p.input(cmd)
}

func newKeysSignCommand(app *App) *cobra.Command {
	var p payloadFlags

	cmd := &cobra.Command{
		Use:   "sign NAME",
		Short: "Sign a digest (--data) or the hash of --text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("signature algorithm", p.alg, azkeys.PossibleSignatureAlgorithmValues())
			if err != nil {
				return err
			}
			digest, err := p.digest(cmd, alg)
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}

			result, err := client.Sign(cmd.Context(), args[0], alg, digest)
			if err != nil {
				return dserrors.VaultError("sign", err)
			}
			return printBase64(cmd, result.Result)
		},
	}

	p.register(cmd, true, false)
	return cmd
}

func newKeysVerifyCommand(app *App) *cobra.Command {
	var (
		p         payloadFlags
		signature string
	)

	cmd := &cobra.Command{
		Use:   "verify NAME",
		Short: "Verify a signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("signature algorithm", p.alg, azkeys.PossibleSignatureAlgorithmValues())
			if err != nil {
				return err
			}
			digest, err := p.digest(cmd, alg)
			if err != nil {
				return err
			}
			sig, err := decodeFlag("signature", signature)
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}

			valid, err := client.Verify(cmd.Context(), args[0], alg, digest, sig)
			if err != nil {
				return dserrors.VaultError("verify", err)
			}
			if !valid {
				return dserrors.UserError{
					Message:    "Signature is not valid",
					Suggestion: "Check that the digest, algorithm and key match the ones used to sign",
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}

	p.register(cmd, true, false)
	cmd.Flags().StringVar(&signature, "signature", "", "Signature, base64 encoded (required)")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func newKeysWrapCommand(app *App) *cobra.Command {
	var p payloadFlags

	cmd := &cobra.Command{
		Use:   "wrap NAME",
		Short: "Wrap a symmetric key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("key wrap algorithm", p.alg, azkeys.PossibleEncryptionAlgorithmValues())
			if err != nil {
				return err
			}
			key, err := p.input(cmd)
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}

			result, err := client.WrapKey(cmd.Context(), args[0], alg, key)
			if err != nil {
				return dserrors.VaultError("wrap key", err)
			}
			return printBase64(cmd, result.Result)
		},
	}

	p.register(cmd, false, false)
	return cmd
}

func newKeysUnwrapCommand(app *App) *cobra.Command {
	var p payloadFlags

	cmd := &cobra.Command{
		Use:   "unwrap NAME",
		Short: "Unwrap a key produced by wrap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseChoice("key wrap algorithm", p.alg, azkeys.PossibleEncryptionAlgorithmValues())
			if err != nil {
				return err
			}
			wrapped, err := p.input(cmd)
			if err != nil {
				return err
			}
			client, err := app.KeyClient()
			if err != nil {
				return err
			}

			key, err := client.UnwrapKey(cmd.Context(), args[0], alg, wrapped)
			if err != nil {
				return dserrors.VaultError("unwrap key", err)
			}
			return printBase64(cmd, key)
		},
	}

	p.register(cmd, false, false)
	return cmd
}

// parseChoice matches value case-insensitively against the SDK's enum values.
func parseChoice[T ~string](what, value string, choices []T) (T, error) {
	names := make([]string, 0, len(choices))
	for _, c := range choices {
		if strings.EqualFold(string(c), value) {
			return c, nil
		}
		names = append(names, string(c))
	}
	var zero T
	return zero, dserrors.UserError{
		Message:    fmt.Sprintf("unknown %s %q", what, value),
		Suggestion: "Use one of: " + strings.Join(sortedCopy(names), ", "),
	}
}

func printBase64(cmd *cobra.Command, b []byte) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b))
	return err
}
