package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

var (
	onboardOTP       string
	onboardKeyFile   string
	onboardCSID      string
	onboardSecret    string
	onboardRequestID string
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Manage the CSID credential lifecycle",
	Long: `Request CSID credential pairs from the regulator.

Onboarding is two-stage: a compliance CSID is issued against a CSR and a
one-time code, then exchanged for a production CSID once the compliance
checks pass.

The CSR subject is read from the csr section of the config file:

  csr:
    common_name: TST-886431145-399999999900003
    serial_number: 1-TST|2-TST|3-ed22f1d8
    organization_name: Fixzit Facility Co
    country_name: SA
    invoice_type: "1100"
    location: RRRD2929
    industry: Facility Management

Examples:
  # Request a compliance CSID
  zatca-engine onboard compliance --otp 123456 --key ec-key.pem

  # Exchange it for a production CSID
  zatca-engine onboard production --csid <token> --secret <secret> --request-id <id>`,
}

var onboardComplianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Request a compliance CSID with a CSR and one-time code",
	RunE:  runOnboardCompliance,
}

var onboardProductionCmd = &cobra.Command{
	Use:   "production",
	Short: "Exchange a compliance CSID for a production CSID",
	RunE:  runOnboardProduction,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
	onboardCmd.AddCommand(onboardComplianceCmd)
	onboardCmd.AddCommand(onboardProductionCmd)

	onboardComplianceCmd.Flags().StringVar(&onboardOTP, "otp", "", "One-time code from the regulator portal (required)")
	onboardComplianceCmd.Flags().StringVar(&onboardKeyFile, "key", "", "PEM EC private key to sign the CSR (required)")
	onboardComplianceCmd.MarkFlagRequired("otp")
	onboardComplianceCmd.MarkFlagRequired("key")

	onboardProductionCmd.Flags().StringVar(&onboardCSID, "csid", "", "Compliance CSID token (required)")
	onboardProductionCmd.Flags().StringVar(&onboardSecret, "secret", "", "Compliance CSID secret (required)")
	onboardProductionCmd.Flags().StringVar(&onboardRequestID, "request-id", "", "Compliance request ID (required)")
	onboardProductionCmd.MarkFlagRequired("csid")
	onboardProductionCmd.MarkFlagRequired("secret")
	onboardProductionCmd.MarkFlagRequired("request-id")
}

func runOnboardCompliance(cmd *cobra.Command, args []string) error {
	var csrConfig stamp.CSRConfig
	if err := viper.UnmarshalKey("csr", &csrConfig); err != nil {
		return fmt.Errorf("read csr config: %w", err)
	}

	privPEM, err := os.ReadFile(onboardKeyFile)
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}

	csr, err := stamp.GenerateCSR(csrConfig, privPEM)
	if err != nil {
		return err
	}
	printVerbose("CSR generated for %s\n", csrConfig.CommonName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := zatca.NewClient(endpointConfig(), zatca.WithLogger(newLogger()))
	return printCSIDResult(client.RequestComplianceCSID(ctx, csr, onboardOTP))
}

func runOnboardProduction(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	compliance := model.Credential{
		CSID:   onboardCSID,
		Secret: onboardSecret,
		Stage:  model.StageCompliance,
	}

	client := zatca.NewClient(endpointConfig(), zatca.WithLogger(newLogger()))
	return printCSIDResult(client.RequestProductionCSID(ctx, compliance, onboardRequestID))
}

func printCSIDResult(result *zatca.CSIDResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Success {
		return fmt.Errorf("csid request failed")
	}
	return nil
}
