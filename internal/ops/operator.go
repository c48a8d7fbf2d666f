// Copyright (C) 2024 The burstlight authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/pbnjay/memory"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/frame"
)

// An execution context for operators
type Context struct {
	Log        io.Writer
	Device     compute.Device
	MemoryMB   int // memory.TotalMemory()/1024/1024
	MaxThreads int `json:"maxThreads"`
}

// Memory budget per concurrent frame materialization, covering the
// float32 frame buffer plus the align and merge stage temporaries
const mbPerThread = 256

func NewContext(log io.Writer, dev compute.Device) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:        log,
		Device:     dev,
		MemoryMB:   memoryMB,
		MaxThreads: maxThreadsForMemory(memoryMB, runtime.GOMAXPROCS(0)),
	}
}

// maxThreadsForMemory caps the worker count so that concurrent frame
// materializations fit the physical memory budget, keeping at least one
func maxThreadsForMemory(memoryMB, cpus int) int {
	t := memoryMB / mbPerThread
	if t > cpus {
		t = cpus
	}
	if t < 1 {
		t = 1
	}
	return t
}

// A promise for a frame. Returns a materialized frame, or an error
type Promise func() (f *frame.Frame, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int) (outs []*frame.Frame, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	outs = make([]*frame.Frame, len(ins))
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			outs[i] = f
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %s", err.Error(), e.Error())
			}
		}
	}
	return removeNils(outs), err
}

// Remove nils from an array of frames, editing the underlying array in place
func removeNils(fs []*frame.Frame) []*frame.Frame {
	o := 0
	for i := 0; i < len(fs); i++ {
		if fs[i] != nil {
			fs[o] = fs[i]
			o++
		}
	}
	for i := o; i < len(fs); i++ {
		fs[i] = nil
	}
	return fs[:o]
}

// A general frame processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers an operator type string with the factory for the type
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// A unary frame processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *frame.Frame, c *Context) (fOut *frame.Frame, err error)
}

// Abstract base type for unary operators
type OpUnaryBase struct {
	OpBase
	Apply func(f *frame.Frame, c *Context) (fOut *frame.Frame, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("unary operator %s with zero inputs", op.Type)
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *frame.Frame, err error) {
		if f, err = in(); err != nil {
			return nil, err
		}
		if f, err = op.Apply(f, c); err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) }

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON,
// using the temporary op.StepsRaw to dispatch on the type tag
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	for _, raw := range op.StepsRaw {
		var step OpBase
		if err := json.Unmarshal(raw, &step); err != nil {
			return err
		}
		factory := GetOperatorFactory(step.Type)
		if factory == nil {
			return fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw))
		}
		i := factory()
		if err := json.Unmarshal(raw, i); err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON,
// using the actual op.Steps with label "steps", and ignoring op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	ins, err = steps[0].MakePromises(ins, c)
	if err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) }

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, errors.New("forEach operator has no operation to apply")
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}
