package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/internal"
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/x509cert"
)

var (
	verifyContentPath string
	verifyPolicyPath  string
	verifyCertPaths   []string
	verifyFormat      = newChoice("text", "text", "json", "yaml")
)

var verifyCmd = &cobra.Command{
	Use:   "verify <signature>",
	Short: "Verify a PKCS#7 signature",
	Long: `Verify every signer of a PKCS#7 SignedData message: the messageDigest
attribute against the signed content, the RSA PKCS#1 v1.5 signature, and the
verification policy. Exits non-zero when any signer fails.`,
	Example: `  bootkit verify image.p7s
  bootkit verify Image.p7s --content Image
  bootkit verify image.p7s --policy policy.yaml --cert signer.pem`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyContentPath, "content", "c", "", "Signed content for a detached signature")
	verifyCmd.Flags().StringVar(&verifyPolicyPath, "policy", "", "Verification policy YAML (default: built-in policy)")
	verifyCmd.Flags().StringArrayVar(&verifyCertPaths, "cert", nil, "Signer certificate file, for signatures that do not embed it (repeatable)")
	addChoiceFlag(verifyCmd, verifyFormat, "format", "Output format")

	registerCompletion(verifyCmd, completionInput{"content", fileCompletion})
	registerCompletion(verifyCmd, completionInput{"policy", extensionCompletion("yaml", "yml")})
	registerCompletion(verifyCmd, completionInput{"cert", extensionCompletion("pem", "crt", "cer", "der")})
}

func runVerify(cmd *cobra.Command, args []string) error {
	policy := internal.DefaultPolicy()
	if verifyPolicyPath != "" {
		var err error
		if policy, err = internal.LoadPolicy(verifyPolicyPath); err != nil {
			return err
		}
	}

	msg, err := readMessage(args[0])
	if err != nil {
		return err
	}
	var certs []*x509cert.Certificate
	for _, path := range verifyCertPaths {
		found, err := readCertificates(path)
		if err != nil {
			return err
		}
		certs = append(certs, found...)
	}

	input := &internal.VerifyInput{Message: msg, Certificates: certs, Policy: policy}
	var result *internal.VerifyResult
	if verifyContentPath != "" {
		// The content is only needed while verifying, so it stays mapped.
		err = internal.OpenInput(verifyContentPath, func(data []byte) error {
			input.Content = data
			result, err = internal.VerifyMessage(cmd.Context(), input)
			return err
		})
	} else {
		result, err = internal.VerifyMessage(cmd.Context(), input)
	}
	if err != nil {
		return fmt.Errorf("verifying %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	switch verifyFormat.String() {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		fmt.Fprint(out, string(data))
	default:
		fmt.Fprint(out, internal.FormatVerifyResult(result, internal.ColorEnabled(os.Stdout)))
	}

	if !result.OK() {
		return errors.New("verification failed")
	}
	return nil
}

// readMessage decodes the first object in path, which must be a PKCS#7
// SignedData message.
func readMessage(path string) (*pkcs7.Message, error) {
	var msg *pkcs7.Message
	err := internal.OpenInput(path, func(data []byte) error {
		obj, err := bootkit.Parse(data)
		if err != nil {
			return err
		}
		if obj.Kind != bootkit.KindMessage {
			return fmt.Errorf("expected a PKCS#7 signature, found %s", obj.Kind)
		}
		msg = obj.Message
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading signature %s: %w", path, err)
	}
	return msg, nil
}

// readCertificates returns every certificate in a PEM bundle or DER file.
func readCertificates(path string) ([]*x509cert.Certificate, error) {
	var certs []*x509cert.Certificate
	err := internal.OpenInput(path, func(data []byte) error {
		objs, err := bootkit.ParseAll(data)
		if err != nil {
			return err
		}
		for _, obj := range objs {
			if obj.Kind == bootkit.KindCertificate {
				certs = append(certs, obj.Certificate)
			}
		}
		if len(certs) == 0 {
			return errors.New("no certificates found")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", path, err)
	}
	return certs, nil
}
