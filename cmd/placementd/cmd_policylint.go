/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pawmarkhq/placement/internal/gating"
)

var policyLintCmd = &cobra.Command{
	Use:   "policy-lint <file>",
	Short: "Validate a placement policy document",
	Long: `Checks a placement policy JSON document for problems without storing it.
Pass "-" to read from stdin.

Examples:
  placementd policy-lint policy.json
  cat policy.json | placementd policy-lint -`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyLint,
}

func init() {
	rootCmd.AddCommand(policyLintCmd)
}

func runPolicyLint(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}

	var blob map[string]any
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("policy is not a JSON object: %w", err)
	}

	problems := gating.Validate(blob)
	if len(problems) == 0 {
		fmt.Println("policy is valid")
		return nil
	}

	for _, problem := range problems {
		fmt.Printf("problem: %s\n", problem)
	}
	return fmt.Errorf("policy has %d problem(s)", len(problems))
}
