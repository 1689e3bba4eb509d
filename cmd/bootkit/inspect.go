package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/bootkit/internal"
)

var (
	inspectFormat    = newChoice("text", "text", "json", "yaml")
	inspectNoAnchors bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Display certificate, signature, or public key information",
	Long: `Show the decoded fields of X.509 certificates, PKCS#7 SignedData messages
and RSA public keys in a PEM or DER file. Certificates are annotated when they
are, or are issued by, a Mozilla root.`,
	Example: `  bootkit inspect image.p7s
  bootkit inspect signer.pem --format json
  bootkit inspect verity.pub --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	addChoiceFlag(inspectCmd, inspectFormat, "format", "Output format")
	inspectCmd.Flags().BoolVar(&inspectNoAnchors, "no-anchors", false, "Skip the Mozilla root annotation")
}

func runInspect(cmd *cobra.Command, args []string) error {
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}

	input := internal.InspectInput{Passwords: passwords}
	if !inspectNoAnchors {
		input.Anchors = internal.LoadMozillaAnchors()
	}
	results, err := internal.InspectFile(args[0], input)
	if err != nil {
		return err
	}

	output, err := internal.FormatInspectResults(results, inspectFormat.String())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
