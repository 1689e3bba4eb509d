package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// choiceValue is a string flag restricted to a fixed set of values, so a
// typo fails at flag parsing instead of after a long scan.
type choiceValue struct {
	value   string
	choices []string
}

var _ pflag.Value = (*choiceValue)(nil)

func newChoice(def string, choices ...string) *choiceValue {
	return &choiceValue{value: def, choices: choices}
}

func (c *choiceValue) String() string { return c.value }

func (c *choiceValue) Set(s string) error {
	s = strings.ToLower(s)
	if !slices.Contains(c.choices, s) {
		return fmt.Errorf("must be one of %s", strings.Join(c.choices, ", "))
	}
	c.value = s
	return nil
}

func (c *choiceValue) Type() string { return "string" }

// addChoiceFlag registers a choice flag on cmd with matching shell completion.
func addChoiceFlag(cmd *cobra.Command, c *choiceValue, name, usage string) {
	cmd.Flags().Var(c, name, fmt.Sprintf("%s: %s", usage, strings.Join(c.choices, ", ")))
	registerCompletion(cmd, completionInput{name, fixedCompletion(c.choices...)})
}
