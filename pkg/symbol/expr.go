// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"encoding/json"
	"fmt"

	"github.com/noema-ai/noema/pkg/fault"
)

// Expr is one operator application in an expression tree.
//
// A leaf wraps a literal Symbol; an inner node names an operator, its
// operand expressions and keyword options. Construction is lazy: no
// inference cost is paid until the execution engine evaluates the tree.
//
// Expr values are immutable after construction. Operand expressions may
// be shared between parents (the tree is a DAG collapsing to a tree via
// single-owner evaluation), but a node can never reach itself; Validate
// rejects cyclic structures that arrive via deserialization.
type Expr struct {
	op       string
	literal  Symbol
	operands []*Expr
	opts     map[string]any
}

// Opt mutates the option map of an expression under construction.
type Opt func(map[string]any)

// WithOption sets an arbitrary option key. The key must belong to the
// recognized option set or evaluation fails with a configuration error.
func WithOption(key string, value any) Opt {
	return func(m map[string]any) { m[key] = value }
}

// WithBackend overrides the backend selection for this node.
func WithBackend(name string) Opt {
	return func(m map[string]any) { m["backend"] = name }
}

// WithTemperature sets the sampling temperature for this node.
func WithTemperature(t float64) Opt {
	return func(m map[string]any) { m["temperature"] = t }
}

// WithMaxTokens caps the output length for this node.
func WithMaxTokens(n int) Opt {
	return func(m map[string]any) { m["max_tokens"] = n }
}

// WithFormat requests a desired output format (e.g. "json", "text").
func WithFormat(format string) Opt {
	return func(m map[string]any) { m["format"] = format }
}

// Lit creates a leaf expression wrapping a literal payload.
func Lit(value any) *Expr {
	return &Expr{literal: New(value)}
}

// LitSymbol creates a leaf expression from an existing Symbol, keeping
// its provenance metadata.
func LitSymbol(s Symbol) *Expr {
	return &Expr{literal: s}
}

// Apply creates an operator node over the given operands.
func Apply(operator string, operands []*Expr, opts ...Opt) *Expr {
	m := make(map[string]any)
	for _, o := range opts {
		o(m)
	}
	ops := make([]*Expr, len(operands))
	copy(ops, operands)
	return &Expr{op: operator, operands: ops, opts: m}
}

// Op returns the operator name ("" for literals).
func (e *Expr) Op() string { return e.op }

// IsLiteral reports whether e is a leaf.
func (e *Expr) IsLiteral() bool { return e.op == "" }

// Literal returns the wrapped Symbol of a leaf node.
func (e *Expr) Literal() Symbol { return e.literal }

// Operands returns the operand expressions. The returned slice is a copy.
func (e *Expr) Operands() []*Expr {
	out := make([]*Expr, len(e.operands))
	copy(out, e.operands)
	return out
}

// Options returns a copy of the node's keyword options.
func (e *Expr) Options() map[string]any {
	out := make(map[string]any, len(e.opts))
	for k, v := range e.opts {
		out[k] = v
	}
	return out
}

// Validate walks the tree and rejects self-referencing structures.
//
// Trees built through this package cannot contain cycles (nodes are
// created before their parents), but expressions decoded from the wire
// or assembled by extension packages are checked before evaluation.
func (e *Expr) Validate() error {
	return e.validate(map[*Expr]bool{})
}

func (e *Expr) validate(path map[*Expr]bool) error {
	if e == nil {
		return fault.Configuration("expression contains a nil operand")
	}
	if path[e] {
		return fault.Configuration("expression node %q references itself", e.op)
	}
	if e.IsLiteral() {
		return nil
	}
	if len(e.operands) == 0 {
		return fault.Configuration("operator %q has no operands", e.op)
	}
	path[e] = true
	for _, operand := range e.operands {
		if err := operand.validate(path); err != nil {
			return err
		}
	}
	delete(path, e)
	return nil
}

// Operators walks the tree and collects the distinct operator names,
// enabling ahead-of-evaluation registry validation.
func (e *Expr) Operators() []string {
	seen := map[string]bool{}
	var names []string
	var walk func(*Expr)
	walk = func(n *Expr) {
		if n == nil || n.IsLiteral() {
			return
		}
		if !seen[n.op] {
			seen[n.op] = true
			names = append(names, n.op)
		}
		for _, operand := range n.operands {
			walk(operand)
		}
	}
	walk(e)
	return names
}

// -----------------------------------------------------------------------------
// Named combinators
//
// These mirror the operator surface of the symbolic layer: combining two
// expressions through a named operator yields a new deferred node. Go has
// no operator overloading, so "a == b" becomes a.Equals(b).
// -----------------------------------------------------------------------------

// Equals defers a semantic equality check between e and other.
func (e *Expr) Equals(other *Expr, opts ...Opt) *Expr {
	return Apply(OpEquals, []*Expr{e, other}, opts...)
}

// Compare defers an ordering comparison ("<", "<=", ">", ">=").
func (e *Expr) Compare(operator string, other *Expr, opts ...Opt) *Expr {
	combined := append([]Opt{WithOption("comparator", operator)}, opts...)
	return Apply(OpCompare, []*Expr{e, other}, combined...)
}

// Contains defers a semantic containment check.
func (e *Expr) Contains(other *Expr, opts ...Opt) *Expr {
	return Apply(OpContains, []*Expr{e, other}, opts...)
}

// Translate defers translation of e into the target language.
func (e *Expr) Translate(language string, opts ...Opt) *Expr {
	combined := append([]Opt{WithOption("language", language)}, opts...)
	return Apply(OpTranslate, []*Expr{e}, combined...)
}

// Extract defers extraction of the described pattern from e.
func (e *Expr) Extract(pattern string, opts ...Opt) *Expr {
	return Apply(OpExtract, []*Expr{e, Lit(pattern)}, opts...)
}

// Query defers a free-form question about e.
func (e *Expr) Query(question string, opts ...Opt) *Expr {
	return Apply(OpQuery, []*Expr{e, Lit(question)}, opts...)
}

// Summarize defers summarization of e.
func (e *Expr) Summarize(opts ...Opt) *Expr {
	return Apply(OpSummarize, []*Expr{e}, opts...)
}

// Clean defers removal of noise (markup, filler) from e.
func (e *Expr) Clean(opts ...Opt) *Expr {
	return Apply(OpClean, []*Expr{e}, opts...)
}

// Negate defers semantic negation of e.
func (e *Expr) Negate(opts ...Opt) *Expr {
	return Apply(OpNegate, []*Expr{e}, opts...)
}

// Combine defers composition of e with additional information.
func (e *Expr) Combine(other *Expr, opts ...Opt) *Expr {
	return Apply(OpCombine, []*Expr{e, other}, opts...)
}

// Classify defers classification of e into one of the given classes.
func (e *Expr) Classify(classes []string, opts ...Opt) *Expr {
	return Apply(OpClassify, []*Expr{e, Lit(classes)}, opts...)
}

// Similarity defers an embedding-based similarity score in [0, 1].
func (e *Expr) Similarity(other *Expr, opts ...Opt) *Expr {
	return Apply(OpSimilarity, []*Expr{e, other}, opts...)
}

// Built-in operator names. The ops package binds capabilities to these.
const (
	OpEquals     = "equals"
	OpCompare    = "compare"
	OpContains   = "contains"
	OpTranslate  = "translate"
	OpExtract    = "extract"
	OpQuery      = "query"
	OpSummarize  = "summarize"
	OpClean      = "clean"
	OpNegate     = "negate"
	OpCombine    = "combine"
	OpClassify   = "classify"
	OpSimilarity = "similarity"
)

// -----------------------------------------------------------------------------
// Wire form
// -----------------------------------------------------------------------------

type exprWire struct {
	Op       string         `json:"op,omitempty"`
	Value    *string        `json:"value,omitempty"`
	Operands []*Expr        `json:"operands,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// MarshalJSON encodes the expression tree for the remote protocol.
func (e *Expr) MarshalJSON() ([]byte, error) {
	if e.IsLiteral() {
		text := e.literal.Text()
		return json.Marshal(exprWire{Value: &text})
	}
	return json.Marshal(exprWire{Op: e.op, Operands: e.operands, Options: e.opts})
}

// UnmarshalJSON decodes an expression tree from the wire.
//
// Decoded trees must still pass Validate before evaluation; the decoder
// only enforces structural well-formedness.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var w exprWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode expression: %w", err)
	}
	if w.Value != nil {
		if w.Op != "" {
			return fmt.Errorf("decode expression: node has both op %q and literal value", w.Op)
		}
		*e = Expr{literal: New(*w.Value)}
		return nil
	}
	if w.Op == "" {
		return fmt.Errorf("decode expression: node has neither op nor value")
	}
	opts := w.Options
	if opts == nil {
		opts = map[string]any{}
	}
	*e = Expr{op: w.Op, operands: w.Operands, opts: opts}
	return nil
}
