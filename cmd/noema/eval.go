// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noema-ai/noema/pkg/client"
	"github.com/noema-ai/noema/pkg/symbol"
)

var (
	evalBackend string
	evalRemote  string
	evalTimeout time.Duration
	evalVerbose bool

	evalCmd = &cobra.Command{
		Use:   "eval <operator> <operand>...",
		Short: "Evaluate a single operator over literal operands",
		Long: `Evaluate applies one operator to literal text operands, e.g.:

  noema eval translate "guten morgen" --opt language=English
  noema eval compare "3" "12"
  noema eval summarize "$(cat notes.txt)"

Without --remote the full stack runs in-process; with --remote the
expression is shipped to a worker over the session protocol.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runEval,
	}

	evalOpts []string
)

func init() {
	evalCmd.Flags().StringVar(&evalBackend, "backend", "", "backend name override for this call")
	evalCmd.Flags().StringVar(&evalRemote, "remote", "", "worker websocket url (ws://host:port/api/v1/session)")
	evalCmd.Flags().DurationVar(&evalTimeout, "timeout", 2*time.Minute, "evaluation deadline")
	evalCmd.Flags().BoolVarP(&evalVerbose, "verbose", "v", false, "print result metadata")
	evalCmd.Flags().StringArrayVar(&evalOpts, "opt", nil, "operator option as key=value (repeatable)")
}

func runEval(cmd *cobra.Command, args []string) error {
	operator := args[0]
	operands := make([]*symbol.Expr, 0, len(args)-1)
	for _, text := range args[1:] {
		operands = append(operands, symbol.Lit(text))
	}

	exprOpts := make([]symbol.Opt, 0, len(evalOpts)+1)
	if evalBackend != "" {
		exprOpts = append(exprOpts, symbol.WithBackend(evalBackend))
	}
	for _, raw := range evalOpts {
		key, value, err := splitOpt(raw)
		if err != nil {
			return err
		}
		exprOpts = append(exprOpts, symbol.WithOption(key, value))
	}
	expr := symbol.Apply(operator, operands, exprOpts...)

	ctx, cancel := context.WithTimeout(cmd.Context(), evalTimeout)
	defer cancel()

	result, err := evaluate(ctx, expr)
	if err != nil {
		return err
	}

	fmt.Println(result.Text())
	if evalVerbose {
		meta := result.Meta()
		fmt.Printf("backend=%s retries=%d degraded=%t cache_hit=%t elapsed=%s tokens=%d\n",
			meta.Backend, meta.Retries, meta.Degraded, meta.CacheHit,
			meta.Elapsed.Round(time.Millisecond), meta.Usage.TotalTokens)
	}
	return nil
}

func evaluate(ctx context.Context, expr *symbol.Expr) (symbol.Symbol, error) {
	if evalRemote != "" {
		c, err := client.Dial(ctx, evalRemote, client.WithLogger(logger))
		if err != nil {
			return symbol.Symbol{}, err
		}
		defer c.Close()
		return c.Evaluate(ctx, expr)
	}

	eng, _, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return symbol.Symbol{}, err
	}
	defer cleanup()
	return eng.Evaluate(ctx, expr)
}

func splitOpt(raw string) (string, string, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			if i == 0 || i == len(raw)-1 {
				break
			}
			return raw[:i], raw[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("option %q is not key=value", raw)
}
