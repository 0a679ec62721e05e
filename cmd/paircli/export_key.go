package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pairing/internal/cryptoprim"
)

// keyExportFile is the on-disk shape of an exported pairing key: the
// shared key sealed under a key derived from a passphrase, so the file
// alone is useless without it.
type keyExportFile struct {
	Topic      string `json:"topic"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func exportKeyCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-key <topic>",
		Short: "Export a settled pairing's shared key to a passphrase-encrypted file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := controller.Get(args[0])
			if err != nil {
				return err
			}

			passphrase, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			key := sha256.Sum256(passphrase)
			nonce, ciphertext, err := cryptoprim.SealBoundary(key[:], rec.SharedKey, nil)
			if err != nil {
				return fmt.Errorf("seal key: %w", err)
			}

			raw, err := json.MarshalIndent(keyExportFile{
				Topic:      rec.Topic,
				Nonce:      hex.EncodeToString(nonce),
				Ciphertext: hex.EncodeToString(ciphertext),
			}, "", "  ")
			if err != nil {
				return err
			}

			if out == "" {
				out = rec.Topic + ".key.json"
			}
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default <topic>.key.json)")
	return cmd
}

func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return passphrase, nil
}
