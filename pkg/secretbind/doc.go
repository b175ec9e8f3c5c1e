// Package secretbind populates a struct from vault secrets, one secret per
// exported field.
//
// By default a field named ConnectionString is read from the secret
// "ConnectionString". Struct tags and Options change that:
//
//	type Settings struct {
//	    Host     string                          // secret "Db--Host" with Prefix "Db--"
//	    Password string `keyvault:"Db-Password"` // literal name, prefix not applied
//	    Timeout  time.Duration                   // "30s"
//	    Ports    []int                           // "80, 443"
//	    Scratch  string `keyvault:"-"`           // never read
//	}
//
//	s, err := secretbind.DeserializeWithOptions[Settings](ctx, client,
//	    &secretbind.Options{Prefix: secretbind.SectionPrefix("Db")})
//
// Slice fields other than []byte are read as comma-separated lists; spaces
// around each element are trimmed.
//
// All secrets are fetched with a single concurrent GetValuesIfExists call.
// Fields whose secret does not exist keep their zero value.
package secretbind
