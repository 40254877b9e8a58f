// Package chain implements the persisted filter chain configuration and a
// minimal executor for it.
//
// A configuration is an HCL file made of ordered link blocks, each carrying
// bounded parameter triples, plus variable and objective blocks:
//
//	variable "subject" {
//	  default = "1"
//	}
//
//	link "signal_generator" {
//	  parameter "model" {
//	    lower = [0, 0]
//	    value = [1, 2]
//	    upper = [10, 10]
//	  }
//	}
//
//	objective "error" {
//	  expression = pow(link[0].model[0] - 3, 2) + abs(link[0].model[1] - 4)
//	}
//
// Objective expressions see link[<index>].<parameter> as a list of numbers
// and var.<name> as a string. Lower objective values are better.
package chain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.uber.org/multierr"
)

var (
	// ErrLinkIndex is returned for a link index outside the chain.
	ErrLinkIndex = errors.New("link index out of range")
	// ErrUnknownParameter is returned when a link has no parameter of the requested name.
	ErrUnknownParameter = errors.New("unknown parameter")
)

type hclFile struct {
	Variables  []*hclVariable  `hcl:"variable,block"`
	Links      []*hclLink      `hcl:"link,block"`
	Objectives []*hclObjective `hcl:"objective,block"`
	Remain     hcl.Body        `hcl:",remain"`
}

type hclVariable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
}

type hclLink struct {
	Kind       string          `hcl:"kind,label"`
	Parameters []*hclParameter `hcl:"parameter,block"`
	Remain     hcl.Body        `hcl:",remain"`
}

type hclParameter struct {
	Name  string    `hcl:"name,label"`
	Lower []float64 `hcl:"lower"`
	Value []float64 `hcl:"value"`
	Upper []float64 `hcl:"upper"`
}

type hclObjective struct {
	Name       string         `hcl:"name,label"`
	Expression hcl.Expression `hcl:"expression"`
}

// BoundedParameters is a lower bound, value, upper bound triple of equal-length vectors.
type BoundedParameters struct {
	Name  string
	Lower []float64
	Value []float64
	Upper []float64
}

// Link is one filter of the chain.
type Link struct {
	Kind       string
	parameters []*BoundedParameters
}

// ReadBoundedParameters returns copies of the named triple.
func (l *Link) ReadBoundedParameters(name string) (lower, value, upper []float64, err error) {
	p := l.parameter(name)
	if p == nil {
		return nil, nil, nil, fmt.Errorf("%w %q on link %q", ErrUnknownParameter, name, l.Kind)
	}
	return clone(p.Lower), clone(p.Value), clone(p.Upper), nil
}

// ParameterNames lists the link's parameters in declaration order.
func (l *Link) ParameterNames() []string {
	names := make([]string, 0, len(l.parameters))
	for _, p := range l.parameters {
		names = append(names, p.Name)
	}
	return names
}

func (l *Link) parameter(name string) *BoundedParameters {
	for _, p := range l.parameters {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type objective struct {
	name string
	expr hcl.Expression
}

// Configuration is a loaded chain configuration. It is not safe for
// concurrent use.
type Configuration struct {
	path       string
	src        []byte
	links      []*Link
	objectives []objective
	defaults   map[string]string
	variables  map[string]string
}

// Load parses the configuration file at path. All error diagnostics are
// returned combined; use multierr.Errors to list them.
func Load(path string) (*Configuration, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, diagnosticsError(diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, diagnosticsError(diags)
	}

	cfg := &Configuration{
		path:      path,
		src:       src,
		defaults:  make(map[string]string),
		variables: make(map[string]string),
	}
	for _, v := range parsed.Variables {
		cfg.defaults[v.Name] = v.Default
	}

	var errs error
	for i, l := range parsed.Links {
		link := &Link{Kind: l.Kind}
		for _, p := range l.Parameters {
			if len(p.Lower) != len(p.Value) || len(p.Upper) != len(p.Value) {
				errs = multierr.Append(errs, fmt.Errorf("link %d (%s): parameter %q: lower, value and upper must have equal length", i, l.Kind, p.Name))
				continue
			}
			if link.parameter(p.Name) != nil {
				errs = multierr.Append(errs, fmt.Errorf("link %d (%s): duplicate parameter %q", i, l.Kind, p.Name))
				continue
			}
			link.parameters = append(link.parameters, &BoundedParameters{Name: p.Name, Lower: p.Lower, Value: p.Value, Upper: p.Upper})
		}
		cfg.links = append(cfg.links, link)
	}

	if len(parsed.Objectives) > solver.MaxObjectives {
		errs = multierr.Append(errs, fmt.Errorf("at most %d objectives are supported, got %d", solver.MaxObjectives, len(parsed.Objectives)))
	}
	for _, o := range parsed.Objectives {
		cfg.objectives = append(cfg.objectives, objective{name: o.Name, expr: o.Expression})
	}

	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

func diagnosticsError(diags hcl.Diagnostics) error {
	var errs error
	for _, d := range diags.Errs() {
		errs = multierr.Append(errs, d)
	}
	return errs
}

// Path is the file the configuration was loaded from.
func (c *Configuration) Path() string {
	return c.path
}

// SetVariable overrides a variable visible to objective expressions.
func (c *Configuration) SetVariable(name, value string) error {
	if name == "" {
		return errors.New("variable name cannot be empty")
	}
	c.variables[name] = value
	return nil
}

// LinkCount is the number of links in the chain.
func (c *Configuration) LinkCount() int {
	return len(c.links)
}

// LinkAt returns the link at a zero-based index.
func (c *Configuration) LinkAt(index int) (*Link, bool) {
	if index < 0 || index >= len(c.links) {
		return nil, false
	}
	return c.links[index], true
}

// ReadBoundedParameters reads a parameter triple of the link at index.
func (c *Configuration) ReadBoundedParameters(index int, name string) (lower, value, upper []float64, err error) {
	link, ok := c.LinkAt(index)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %d", ErrLinkIndex, index)
	}
	return link.ReadBoundedParameters(name)
}

// WriteParameterValues replaces the value segment of a parameter triple.
func (c *Configuration) WriteParameterValues(index int, name string, values []float64) error {
	link, ok := c.LinkAt(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrLinkIndex, index)
	}
	p := link.parameter(name)
	if p == nil {
		return fmt.Errorf("%w %q on link %q", ErrUnknownParameter, name, link.Kind)
	}
	if len(values) != len(p.Value) {
		return fmt.Errorf("parameter %q holds %d values, got %d", name, len(p.Value), len(values))
	}
	copy(p.Value, values)
	return nil
}

// ObjectiveNames lists objectives in slot order.
func (c *Configuration) ObjectiveNames() []string {
	names := make([]string, 0, len(c.objectives))
	for _, o := range c.objectives {
		names = append(names, o.name)
	}
	return names
}

// Evaluate computes every objective against the current parameter values.
// Slots without an objective are NaN.
func (c *Configuration) Evaluate() (solver.Fitness, error) {
	fitness := solver.NaNFitness()
	ctx := c.evalContext()

	for i, o := range c.objectives {
		if i >= solver.MaxObjectives {
			break
		}
		v, diags := o.expr.Value(ctx)
		if diags.HasErrors() {
			return fitness, fmt.Errorf("objective %q: %w", o.name, diags)
		}
		v, err := convert.Convert(v, cty.Number)
		if err != nil {
			return fitness, fmt.Errorf("objective %q: %w", o.name, err)
		}
		if v.IsNull() || !v.IsKnown() {
			return fitness, fmt.Errorf("objective %q evaluated to no value", o.name)
		}
		fitness[i], _ = v.AsBigFloat().Float64()
	}
	return fitness, nil
}

var functions = map[string]function.Function{
	"abs":      stdlib.AbsoluteFunc,
	"ceil":     stdlib.CeilFunc,
	"floor":    stdlib.FloorFunc,
	"log":      stdlib.LogFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"pow":      stdlib.PowFunc,
	"signum":   stdlib.SignumFunc,
	"length":   stdlib.LengthFunc,
	"element":  stdlib.ElementFunc,
	"tonumber": stdlib.MakeToFunc(cty.Number),
}

func (c *Configuration) evalContext() *hcl.EvalContext {
	links := make([]cty.Value, 0, len(c.links))
	for _, l := range c.links {
		params := make(map[string]cty.Value, len(l.parameters))
		for _, p := range l.parameters {
			params[p.Name] = numberList(p.Value)
		}
		links = append(links, cty.ObjectVal(params))
	}

	vars := make(map[string]cty.Value, len(c.defaults)+len(c.variables))
	for k, v := range c.defaults {
		vars[k] = cty.StringVal(v)
	}
	for k, v := range c.variables {
		vars[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"link": cty.TupleVal(links),
			"var":  cty.ObjectVal(vars),
		},
		Functions: functions,
	}
}

func numberList(values []float64) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	elems := make([]cty.Value, len(values))
	for i, v := range values {
		elems[i] = cty.NumberFloatVal(v)
	}
	return cty.ListVal(elems)
}

// Save writes the current parameter values back to the file the
// configuration was loaded from.
func (c *Configuration) Save() error {
	return c.SaveAs(c.path)
}

// SaveAs rewrites the value attribute of every parameter in the loaded
// source, leaving the rest of the file untouched, and replaces path
// atomically.
func (c *Configuration) SaveAs(path string) error {
	file, diags := hclwrite.ParseConfig(c.src, c.path, hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("failed to reparse configuration: %w", diags)
	}

	index := 0
	for _, block := range file.Body().Blocks() {
		if block.Type() != "link" {
			continue
		}
		if index >= len(c.links) {
			break
		}
		link := c.links[index]
		index++

		for _, pb := range block.Body().Blocks() {
			labels := pb.Labels()
			if pb.Type() != "parameter" || len(labels) != 1 {
				continue
			}
			if p := link.parameter(labels[0]); p != nil {
				pb.Body().SetAttributeValue("value", numberList(p.Value))
			}
		}
	}

	data := file.Bytes()
	tempPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp configuration file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename configuration file: %w", err)
	}

	c.src = data
	return nil
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}
