package cmd

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/rezonia/zatca-engine/internal/tlv"
)

var qrCmd = &cobra.Command{
	Use:   "qr <payload>",
	Short: "Decode a TLV QR payload",
	Long: `Decode a base64 TLV QR payload and print its records.

Text values print as-is; binary values (invoice hash, signatures) print
base64-encoded.

Examples:
  zatca-engine qr AR5GaXh6aXQgRmFjaWxpdHkgQ28...`,
	Args: cobra.ExactArgs(1),
	RunE: runQR,
}

func init() {
	rootCmd.AddCommand(qrCmd)
}

func runQR(cmd *cobra.Command, args []string) error {
	records, err := tlv.DecodeSequence(args[0])
	if err != nil {
		return err
	}

	for _, r := range records {
		if utf8.Valid(r.Value) {
			fmt.Printf("tag %d  %s\n", r.Tag, string(r.Value))
		} else {
			fmt.Printf("tag %d  base64:%s\n", r.Tag, base64.StdEncoding.EncodeToString(r.Value))
		}
	}
	return nil
}
