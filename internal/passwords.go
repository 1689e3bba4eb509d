package internal

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sensiblebit/bootkit"
)

// LoadPasswordsFromFile loads passwords from a file, one password per line
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ProcessPasswords merges the default container passwords with those given
// on the command line and in passwordFile, in that order, without duplicates.
func ProcessPasswords(passwordList []string, passwordFile string) ([]string, error) {
	passwords := slices.Clone(passwordList)

	if passwordFile != "" {
		filePasswords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("loading passwords from file: %w", err)
		}
		passwords = append(passwords, filePasswords...)
	}

	return bootkit.DeduplicatePasswords(passwords), nil
}
