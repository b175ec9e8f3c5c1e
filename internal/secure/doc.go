// Package secure holds secret values read by the CLI in memguard enclaves
// until they are sent to Key Vault.
//
// Values are encrypted at rest in memory (XSalsa20Poly1305), kept out of
// swap with mlock, and wiped on Destroy. A Value never prints its
// plaintext through fmt:
//
//	v, err := secure.ReadValue(os.Stdin)
//	if err != nil {
//	    return err
//	}
//	defer v.Destroy()
//	plain, err := v.Reveal()
//
// Reveal copies the plaintext into a Go string because the Azure SDK takes
// strings. Keep the revealed string's lifetime short.
//
// Call memguard.Purge at process exit to wipe every remaining enclave.
package secure
