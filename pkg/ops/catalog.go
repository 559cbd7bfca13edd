// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// metaPreamble keeps model output terse and machine-consumable. Every
// prompt operator prepends it to the system message.
const metaPreamble = "[META INSTRUCTIONS]\n" +
	"You output only the requested result. No preambles, no post " +
	"explanations, no meta commentary. Keep formatting clean: punctuation " +
	"for sentences, indentation for code.\n"

// builtin is a catalog operator: a prompt template serviced by a
// completion backend, an optional deterministic rule serviced by the
// rule-based backend, or both. When the selected provider is a
// Completer the prompt path wins; otherwise the rule path runs.
type builtin struct {
	operator    string
	minOperands int
	prompt      func(call Call) (system, user string)
	rule        func(call Call) (string, error)
}

// Invoke implements Capability.
func (b *builtin) Invoke(ctx context.Context, call Call, provider backend.Provider) (symbol.Symbol, error) {
	if len(call.Operands) < b.minOperands {
		return symbol.Symbol{}, fault.Configuration(
			"operator %q requires at least %d operands, got %d",
			b.operator, b.minOperands, len(call.Operands))
	}

	if completer, ok := provider.(backend.Completer); ok && b.prompt != nil {
		system, user := b.prompt(call)
		if format := call.Options.Format(); format != "" {
			system += fmt.Sprintf("\n[OUTPUT FORMAT]\nRespond as %s.\n", format)
		}
		req := backend.CompletionRequest{
			System:      metaPreamble + system,
			Prompt:      user,
			Temperature: call.Options.Temperature(),
			MaxTokens:   call.Options.MaxTokens(),
			TopP:        call.Options.TopP(),
			Stop:        call.Options.Stop(),
		}
		start := time.Now()
		res, err := completer.Complete(ctx, req)
		if err != nil {
			return symbol.Symbol{}, err
		}
		return symbol.WithMeta(strings.TrimSpace(res.Text), symbol.Metadata{
			Origin:  b.operator,
			Usage:   res.Usage,
			Elapsed: time.Since(start),
		}), nil
	}

	if b.rule != nil {
		out, err := b.rule(call)
		if err != nil {
			return symbol.Symbol{}, err
		}
		return symbol.WithMeta(out, symbol.Metadata{Origin: b.operator}), nil
	}

	return symbol.Symbol{}, fault.OperatorUnavailable(b.operator)
}

// similarityCapability scores two operands by embedding cosine.
type similarityCapability struct{}

// Invoke implements Capability.
func (similarityCapability) Invoke(ctx context.Context, call Call, provider backend.Provider) (symbol.Symbol, error) {
	if len(call.Operands) < 2 {
		return symbol.Symbol{}, fault.Configuration("operator %q requires two operands", symbol.OpSimilarity)
	}
	embedder, ok := provider.(backend.Embedder)
	if !ok {
		return symbol.Symbol{}, fault.OperatorUnavailable(symbol.OpSimilarity)
	}
	start := time.Now()
	vecs, err := embedder.Embed(ctx, []string{call.Operands[0].Text(), call.Operands[1].Text()})
	if err != nil {
		return symbol.Symbol{}, err
	}
	score := backend.Cosine(vecs[0], vecs[1])
	return symbol.WithMeta(strconv.FormatFloat(score, 'f', 4, 64), symbol.Metadata{
		Origin:  symbol.OpSimilarity,
		Elapsed: time.Since(start),
	}), nil
}

// builtinCatalog returns the operator set of the symbolic layer.
func builtinCatalog() map[string]Capability {
	return map[string]Capability{
		symbol.OpEquals: &builtin{
			operator:    symbol.OpEquals,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return "Decide whether statements A and B are semantically equivalent. " +
						"Answer strictly 'true' or 'false'.",
					pairPrompt(call)
			},
			rule: func(call Call) (string, error) {
				a := strings.TrimSpace(call.Operands[0].Text())
				b := strings.TrimSpace(call.Operands[1].Text())
				return strconv.FormatBool(strings.EqualFold(a, b)), nil
			},
		},
		symbol.OpCompare: &builtin{
			operator:    symbol.OpCompare,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				cmp := call.Options.Comparator()
				if cmp == "" {
					cmp = ">"
				}
				return fmt.Sprintf("Decide whether A %s B holds semantically "+
						"(magnitude, intensity, ordering). Answer strictly 'true' or 'false'.", cmp),
					pairPrompt(call)
			},
			rule: ruleCompare,
		},
		symbol.OpContains: &builtin{
			operator:    symbol.OpContains,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return "Decide whether text A contains or entails B. " +
						"Answer strictly 'true' or 'false'.",
					pairPrompt(call)
			},
			rule: func(call Call) (string, error) {
				a := strings.ToLower(call.Operands[0].Text())
				b := strings.ToLower(strings.TrimSpace(call.Operands[1].Text()))
				return strconv.FormatBool(b != "" && strings.Contains(a, b)), nil
			},
		},
		symbol.OpTranslate: &builtin{
			operator:    symbol.OpTranslate,
			minOperands: 1,
			prompt: func(call Call) (string, string) {
				lang := call.Options.Language()
				if lang == "" {
					lang = "English"
				}
				return fmt.Sprintf("Translate the text into %s. Preserve meaning, tone and formatting.", lang),
					call.Operands[0].Text()
			},
		},
		symbol.OpExtract: &builtin{
			operator:    symbol.OpExtract,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return fmt.Sprintf("Extract the following from the text: %s. "+
						"Output only the extracted content.", call.Operands[1].Text()),
					call.Operands[0].Text()
			},
		},
		symbol.OpQuery: &builtin{
			operator:    symbol.OpQuery,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return "Answer the question using only the given context.",
					fmt.Sprintf("[CONTEXT]\n%s\n\n[QUESTION]\n%s",
						call.Operands[0].Text(), call.Operands[1].Text())
			},
		},
		symbol.OpSummarize: &builtin{
			operator:    symbol.OpSummarize,
			minOperands: 1,
			prompt: func(call Call) (string, string) {
				return "Summarize the text concisely without losing key facts.",
					call.Operands[0].Text()
			},
		},
		symbol.OpClean: &builtin{
			operator:    symbol.OpClean,
			minOperands: 1,
			prompt: func(call Call) (string, string) {
				return "Remove noise from the text: markup remnants, filler words, " +
						"duplicated whitespace. Output the cleaned text only.",
					call.Operands[0].Text()
			},
			rule: func(call Call) (string, error) {
				return strings.Join(strings.Fields(call.Operands[0].Text()), " "), nil
			},
		},
		symbol.OpNegate: &builtin{
			operator:    symbol.OpNegate,
			minOperands: 1,
			prompt: func(call Call) (string, string) {
				return "Negate the statement. Output only the negated statement.",
					call.Operands[0].Text()
			},
			rule: func(call Call) (string, error) {
				text := strings.TrimSpace(call.Operands[0].Text())
				if rest, found := strings.CutPrefix(text, "not "); found {
					return rest, nil
				}
				return "not " + text, nil
			},
		},
		symbol.OpCombine: &builtin{
			operator:    symbol.OpCombine,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return "Compose the two pieces of information into one coherent text.",
					pairPrompt(call)
			},
			rule: func(call Call) (string, error) {
				return call.Operands[0].Text() + "\n" + call.Operands[1].Text(), nil
			},
		},
		symbol.OpClassify: &builtin{
			operator:    symbol.OpClassify,
			minOperands: 2,
			prompt: func(call Call) (string, string) {
				return fmt.Sprintf("Classify the text into exactly one of these classes:\n%s\n"+
						"Output only the chosen class.", call.Operands[1].Text()),
					call.Operands[0].Text()
			},
			rule: ruleClassify,
		},
		symbol.OpSimilarity: similarityCapability{},
	}
}

// pairPrompt renders the first two operands as labelled sections.
func pairPrompt(call Call) string {
	return fmt.Sprintf("[A]\n%s\n\n[B]\n%s", call.Operands[0].Text(), call.Operands[1].Text())
}

// ruleCompare compares numerically when both operands parse as numbers,
// lexicographically otherwise.
func ruleCompare(call Call) (string, error) {
	cmp := call.Options.Comparator()
	if cmp == "" {
		cmp = ">"
	}
	a := strings.TrimSpace(call.Operands[0].Text())
	b := strings.TrimSpace(call.Operands[1].Text())

	var ord int
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil && fa < fb:
		ord = -1
	case errA == nil && errB == nil && fa > fb:
		ord = 1
	case errA == nil && errB == nil:
		ord = 0
	default:
		ord = strings.Compare(a, b)
	}

	var result bool
	switch cmp {
	case "<":
		result = ord < 0
	case "<=":
		result = ord <= 0
	case ">":
		result = ord > 0
	case ">=":
		result = ord >= 0
	default:
		return "", fault.Configuration("unknown comparator %q", cmp)
	}
	return strconv.FormatBool(result), nil
}

// ruleClassify picks the class whose text matches (exact first, then
// substring), falling back to the first class.
func ruleClassify(call Call) (string, error) {
	text := strings.ToLower(strings.TrimSpace(call.Operands[0].Text()))
	classes := strings.Split(call.Operands[1].Text(), "\n")
	if len(classes) == 0 {
		return "", fault.Configuration("classify requires at least one class")
	}
	for _, class := range classes {
		if strings.ToLower(strings.TrimSpace(class)) == text {
			return strings.TrimSpace(class), nil
		}
	}
	for _, class := range classes {
		if strings.Contains(text, strings.ToLower(strings.TrimSpace(class))) {
			return strings.TrimSpace(class), nil
		}
	}
	return strings.TrimSpace(classes[0]), nil
}
