/*
 * Copyright (C) 2023 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package rrdquery

import (
	"fmt"
	"strconv"
	"strings"
)

// Engine operators accepted by the expression builder.
const (
	OpAdd          = "+"
	OpSub          = "-"
	OpDiv          = "/"
	OpAbs          = "ABS"
	OpEq           = "EQ"
	OpIf           = "IF"
	OpTrend        = "TRENDNAN"
	OpPredict      = "PREDICT"
	OpPredictSigma = "PREDICTSIGMA"
)

// Operands each operator consumes off the stack. PREDICT and PREDICTSIGMA
// are used in their basis form: interval, count, window, series.
var operatorArity = map[string]int{
	OpAdd:          2,
	OpSub:          2,
	OpDiv:          2,
	OpAbs:          1,
	OpEq:           2,
	OpIf:           3,
	OpTrend:        2,
	OpPredict:      4,
	OpPredictSigma: 4,
}

// Expr accumulates a reverse polish expression for a derived series,
// tracking the operand stack depth so that a malformed expression fails
// when it is built rather than inside the engine.
type Expr struct {
	tokens []string
	depth  int
	err    error
}

func NewExpr() *Expr {
	return &Expr{}
}

// Operand pushes a literal engine token that yields a single value.
func (e *Expr) Operand(token string) *Expr {
	if e.err != nil {
		return e
	}
	if token == "" {
		e.err = fmt.Errorf("empty operand")
		return e
	}
	e.tokens = append(e.tokens, token)
	e.depth++
	return e
}

// Number pushes an integer literal.
func (e *Expr) Number(v int) *Expr {
	return e.Operand(strconv.Itoa(v))
}

// Ref pushes a reference to a registered step.
func (e *Expr) Ref(ref StepRef) *Expr {
	return e.Operand(ref.name)
}

// Operator applies one of the Op constants, consuming its operands from
// the stack and pushing one result.
func (e *Expr) Operator(op string) *Expr {
	if e.err != nil {
		return e
	}
	arity, known := operatorArity[op]
	if !known {
		e.err = fmt.Errorf("unknown operator %q", op)
		return e
	}
	if e.depth < arity {
		e.err = fmt.Errorf("operator %s wants %d operands, stack holds %d", op, arity, e.depth)
		return e
	}
	e.tokens = append(e.tokens, op)
	e.depth = e.depth - arity + 1
	return e
}

// Err reports the first building mistake, or an expression that does not
// reduce to a single value.
func (e *Expr) Err() error {
	if e.err != nil {
		return e.err
	}
	if e.depth != 1 {
		return fmt.Errorf("expression leaves %d values on the stack, want 1", e.depth)
	}
	return nil
}

// Render serializes the expression to the engine's comma separated form.
func (e *Expr) Render() (string, error) {
	if err := e.Err(); err != nil {
		return "", err
	}
	return strings.Join(e.tokens, ","), nil
}
