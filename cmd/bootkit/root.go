package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/bootkit/internal"
)

var (
	logLevel     string
	passwordList []string
	passwordFile string
)

var rootCmd = &cobra.Command{
	Use:   "bootkit",
	Short: "Verified boot signing artifact tool",
	Long:  "Decode, verify and catalog the X.509 certificates, PKCS#7 signatures and RSA public keys used by verified boot.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		internal.SetupLogger(logLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringSliceVarP(&passwordList, "passwords", "p", nil, "Comma-separated passwords for PKCS#12 and JKS containers")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "File containing passwords, one per line")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"password-file", fileCompletion})

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
}

func loadPasswords() ([]string, error) {
	passwords, err := internal.ProcessPasswords(passwordList, passwordFile)
	if err != nil {
		return nil, fmt.Errorf("loading passwords: %w", err)
	}
	return passwords, nil
}
