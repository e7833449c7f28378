/*
Package derived evaluates user defined metric expressions over each interval
record.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package derived

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/intel/powermeter/internal/sink"
	"k8s.io/klog/v2"
)

// Variables available to expressions.
var Variables = []string{"power", "energy", "total_energy", "elapsed"}

type Definition struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

type metric struct {
	Definition
	evaluable *govaluate.EvaluableExpression // parse each metric one time
}

type Evaluator struct {
	metrics []metric
}

// define functions that can be called in metric expressions
func getEvaluatorFunctions() (functions map[string]govaluate.ExpressionFunction) {
	functions = make(map[string]govaluate.ExpressionFunction)
	functions["max"] = func(args ...interface{}) (interface{}, error) {
		left, right, err := twoFloats(args)
		if err != nil {
			return nil, err
		}
		return max(left, right), nil
	}
	functions["min"] = func(args ...interface{}) (interface{}, error) {
		left, right, err := twoFloats(args)
		if err != nil {
			return nil, err
		}
		return min(left, right), nil
	}
	functions["abs"] = func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs takes one argument")
		}
		val, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("abs argument is not a number")
		}
		return math.Abs(val), nil
	}
	return
}

func twoFloats(args []interface{}) (left, right float64, err error) {
	if len(args) != 2 {
		err = fmt.Errorf("expected two arguments, got %d", len(args))
		return
	}
	var ok bool
	if left, ok = args[0].(float64); !ok {
		err = fmt.Errorf("first argument is not a number")
		return
	}
	if right, ok = args[1].(float64); !ok {
		err = fmt.Errorf("second argument is not a number")
	}
	return
}

// Compile parses every definition and checks that it only refers to known
// variables.
func Compile(defs []Definition) (e *Evaluator, err error) {
	e = &Evaluator{}
	known := make(map[string]bool)
	for _, v := range Variables {
		known[v] = true
	}
	names := make(map[string]bool)
	for _, def := range defs {
		if def.Name == "" {
			err = fmt.Errorf("derived metric has no name: %s", def.Expression)
			return
		}
		if names[def.Name] {
			err = fmt.Errorf("duplicate derived metric %s", def.Name)
			return
		}
		names[def.Name] = true
		var evaluable *govaluate.EvaluableExpression
		evaluable, err = govaluate.NewEvaluableExpressionWithFunctions(def.Expression, getEvaluatorFunctions())
		if err != nil {
			err = fmt.Errorf("failed to parse derived metric %s: %v", def.Name, err)
			return
		}
		for _, v := range evaluable.Vars() {
			if !known[v] {
				err = fmt.Errorf("derived metric %s refers to unknown variable %s", def.Name, v)
				return
			}
		}
		e.metrics = append(e.metrics, metric{Definition: def, evaluable: evaluable})
	}
	return
}

func (e *Evaluator) Len() int {
	return len(e.metrics)
}

func (e *Evaluator) Names() (names []string) {
	for _, m := range e.metrics {
		names = append(names, m.Name)
	}
	return
}

// function to call evaluator so that we can catch panics that come from the evaluator
func evaluateExpression(m metric, variables map[string]interface{}) (result float64, err error) {
	defer func() {
		if errx := recover(); errx != nil {
			err = fmt.Errorf("%v : %s : %s", errx, m.Name, m.Expression)
		}
	}()
	out, err := m.evaluable.Evaluate(variables)
	if err != nil {
		err = fmt.Errorf("%v : %s : %s", err, m.Name, m.Expression)
		return
	}
	switch v := out.(type) {
	case float64:
		result = v
	case bool:
		if v {
			result = 1
		}
	default:
		err = fmt.Errorf("unexpected result type %T : %s : %s", out, m.Name, m.Expression)
	}
	return
}

// Evaluate computes every metric for rec. Records that do not carry trusted
// numbers yield NaN.
func (e *Evaluator) Evaluate(rec sink.Record) (values []sink.Value) {
	variables := map[string]interface{}{
		"power":        rec.Power,
		"energy":       rec.Energy,
		"total_energy": rec.TotalEnergy,
		"elapsed":      rec.Elapsed,
	}
	usable := rec.Status == sink.StatusOK || rec.Status == sink.StatusDegraded
	for _, m := range e.metrics {
		value := math.NaN()
		if usable {
			result, err := evaluateExpression(m, variables)
			if err != nil {
				klog.V(1).Info(err)
			} else {
				value = result
			}
		}
		values = append(values, sink.Value{Name: m.Name, Value: value})
	}
	return
}
