package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rezonia/zatca-engine/internal/zatca"
)

var (
	version = "1.0.0"

	// Global flags
	verbose bool
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "zatca-engine",
	Short: "Saudi Arabia (ZATCA) e-invoicing compliance engine",
	Long: `zatca-engine prepares, signs and submits e-invoices to the Saudi tax
authority (ZATCA) and manages the CSID credential lifecycle.

Supports:
  - Clearance (B2B), reporting (B2C) and compliance submission modes
  - EC key and CSR generation for onboarding
  - Hash chain (ICV/PIH) sequencing and verification
  - TLV QR payload assembly and decoding

Examples:
  # Start the HTTP API server
  zatca-engine serve --address :8080 --key ec-key.pem

  # Generate an EC keypair for onboarding
  zatca-engine keygen --out ec-key

  # Request a compliance CSID
  zatca-engine onboard compliance --otp 123456 --key ec-key.pem

  # Verify an exported invoice chain
  zatca-engine verify --org org-1 inv-*.xml`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default zatca-engine.yaml, env: ZATCA_*)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("zatca-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("ZATCA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A config file is optional; flags and environment still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: cannot read config %s: %v\n", cfgFile, err)
		}
	} else {
		printVerbose("Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// endpointConfig resolves the regulator endpoints from config and environment
func endpointConfig() *zatca.Config {
	cfg := &zatca.Config{}
	if err := viper.UnmarshalKey("api", cfg); err != nil {
		return cfg
	}
	return cfg
}

func newLogger() *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
