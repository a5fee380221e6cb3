package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/zatca-engine/internal/stamp"
)

var (
	keygenCurve string
	keygenOut   string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an EC keypair for invoice signing",
	Long: `Generate an EC keypair and write it as PEM files.

The private key signs invoice hashes and the CSR during onboarding; the
public key is embedded in phase-2 QR payloads.

Examples:
  # Generate on the default curve
  zatca-engine keygen --out ec-key

  # Generate on a specific curve
  zatca-engine keygen --out ec-key --curve P-256`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVar(&keygenCurve, "curve", stamp.DefaultCurve, "EC curve (P-256, P-384, P-521)")
	keygenCmd.Flags().StringVar(&keygenOut, "out", "ec-key", "Output path prefix (<out>.pem and <out>.pub.pem)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	privPEM, pubPEM, err := stamp.GenerateKeyPair(keygenCurve)
	if err != nil {
		return err
	}

	privPath := keygenOut + ".pem"
	pubPath := keygenOut + ".pub.pem"

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("Private key written to %s\n", privPath)
	fmt.Printf("Public key written to %s\n", pubPath)
	return nil
}
