// Package options turns the console command line into an action
// descriptor: what to do with which configuration and, for optimization,
// with which solver, search limits, targets, variables and hint sources.
package options

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/spf13/pflag"
)

// Action is what the process is asked to do.
type Action int

const (
	ActionFailed Action = iota
	ActionExecute
	ActionOptimize
)

func (a Action) String() string {
	switch a {
	case ActionExecute:
		return "execute"
	case ActionOptimize:
		return "optimize"
	default:
		return "failed"
	}
}

const (
	DefaultGenerationCount = 96
	DefaultPopulationSize  = 1000
)

// Variable is a name:=value assignment applied to the configuration.
type Variable struct {
	Name  string
	Value string
}

// Descriptor is the resolved command line.
type Descriptor struct {
	Action            Action
	ConfigPath        string
	SaveConfiguration bool
	SolverID          solver.ID
	GenerationCount   int
	PopulationSize    int
	Targets           []solver.Target
	Variables         []Variable
	Hints             []string
	ParameterHints    []string
}

// NewDescriptor returns a failed descriptor carrying every default.
func NewDescriptor() Descriptor {
	return Descriptor{
		Action:          ActionFailed,
		SolverID:        solver.DefaultID,
		GenerationCount: DefaultGenerationCount,
		PopulationSize:  DefaultPopulationSize,
	}
}

// Flag names of the command line.
const (
	FlagExecute         = "execute"
	FlagOptimize        = "optimize"
	FlagSave            = "save_configuration"
	FlagSolverID        = "solver_id"
	FlagGenerationCount = "generation_count"
	FlagPopulationSize  = "population_size"
	FlagParameter       = "parameter"
	FlagVariable        = "variable"
	FlagHint            = "hint"
	FlagParametersHint  = "parameters_hint"
)

// Flags holds the raw flag values before validation. Numeric values and the
// solver id stay strings so that malformed input is reported by Resolve
// rather than by the flag parser.
type Flags struct {
	Execute         bool
	Optimize        bool
	Save            bool
	SolverID        string
	GenerationCount string
	PopulationSize  string
	Parameters      []string
	Variables       []string
	Hints           []string
	ParameterHints  []string
}

// Bind registers the command line flags on fs.
func Bind(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.BoolVarP(&f.Execute, FlagExecute, "e", false, "execute the configuration, exclusive to --optimize; default action")
	fs.BoolVarP(&f.Optimize, FlagOptimize, "o", false, "optimize the configuration instead of executing it")
	fs.BoolVarP(&f.Save, FlagSave, "s", false, "save the configuration after execution/optimization")
	fs.StringVarP(&f.SolverID, FlagSolverID, "r", "", "select the solver by its id, e.g. {01274B08-F721-42BC-A562-0556714C5685}")
	fs.StringVarP(&f.GenerationCount, FlagGenerationCount, "g", "", fmt.Sprintf("maximum number of generations/iterations for the solver (default %d)", DefaultGenerationCount))
	fs.StringVarP(&f.PopulationSize, FlagPopulationSize, "z", "", fmt.Sprintf("population size/problem stepping for the solver, if applicable (default %d)", DefaultPopulationSize))
	fs.StringArrayVarP(&f.Parameters, FlagParameter, "p", nil, "link_zero_index,parameter_name of a parameter to optimize; repeatable")
	fs.StringArrayVarP(&f.Variables, FlagVariable, "v", nil, "name:=value assignment of a configuration variable; repeatable")
	fs.StringArrayVar(&f.Hints, FlagHint, nil, "file or file mask of hint vectors; repeatable")
	fs.StringArrayVarP(&f.ParameterHints, FlagParametersHint, "m", nil, "file or file mask of parameter files to use as hints; repeatable")
	return f
}

// Resolver validates flags into a Descriptor. Status lines go to Out,
// diagnostics to Err.
type Resolver struct {
	Registry *solver.Registry
	Out      io.Writer
	Err      io.Writer
}

// Parse tokenizes args (without the program name) and resolves them.
func (r *Resolver) Parse(args []string) (Descriptor, error) {
	fs := pflag.NewFlagSet("chainopt", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := Bind(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(r.Err, "Failed to parse the command line options!")
		r.PrintUsage(fs)
		return NewDescriptor(), exitcode.New(exitcode.OptionParse, err)
	}
	return r.Resolve(fs.Args(), fs, flags)
}

// Resolve builds the descriptor from positional arguments and parsed flags.
// Resolution stops at the first failure, which is returned categorized after
// the usage text is printed.
func (r *Resolver) Resolve(positional []string, fs *pflag.FlagSet, f *Flags) (Descriptor, error) {
	result, err := r.resolve(positional, fs, f)
	if err != nil {
		r.PrintUsage(fs)
	}
	return result, err
}

func (r *Resolver) resolve(positional []string, fs *pflag.FlagSet, f *Flags) (Descriptor, error) {
	result := NewDescriptor()

	if len(positional) < 1 {
		return result, exitcode.Errorf(exitcode.Usage, "configuration path not given")
	}
	if len(positional) > 1 {
		fmt.Fprintf(r.Err, "Ignoring extra arguments: %s\n", strings.Join(positional[1:], " "))
	}

	result.ConfigPath = positional[0]
	if result.ConfigPath == "" {
		fmt.Fprintln(r.Err, "Configuration file path cannot be empty!")
		return result, exitcode.Errorf(exitcode.OptionParse, "configuration file path cannot be empty")
	}

	switch {
	case f.Execute && f.Optimize:
		fmt.Fprintf(r.Err, "--%s and --%s are mutually exclusive!\n", FlagExecute, FlagOptimize)
		return result, exitcode.Errorf(exitcode.OptionParse, "--%s and --%s are mutually exclusive", FlagExecute, FlagOptimize)
	case f.Optimize:
		result.Action = ActionOptimize
	case f.Execute:
		result.Action = ActionExecute
	default:
		fmt.Fprintln(r.Out, "Action not specified, will default to execution.")
		result.Action = ActionExecute
	}

	result.SaveConfiguration = f.Save

	if result.Action == ActionOptimize {
		if err := r.resolveOptimize(&result, fs, f); err != nil {
			result.Action = ActionFailed
			return result, err
		}
	}

	variables, err := r.resolveVariables(f.Variables)
	if err != nil {
		result.Action = ActionFailed
		return result, err
	}
	result.Variables = variables

	if result.Action == ActionOptimize {
		result.Hints = r.gather(FlagHint, f.Hints)
		result.ParameterHints = r.gather(FlagParametersHint, f.ParameterHints)

		if len(result.Targets) == 0 {
			fmt.Fprintln(r.Err, "Have no parameters to optimize!")
			result.Action = ActionFailed
			return result, exitcode.Errorf(exitcode.NoTargets, "optimization requires at least one --%s", FlagParameter)
		}
	}
	return result, nil
}

// resolveOptimize resolves, in order, the solver, the generation count, the
// population size and the parameters to optimize.
func (r *Resolver) resolveOptimize(result *Descriptor, fs *pflag.FlagSet, f *Flags) error {
	if changed(fs, FlagSolverID) {
		id, err := solver.ParseID(f.SolverID)
		if err != nil {
			fmt.Fprintln(r.Err, "Malformed solver id!")
			r.printExampleID()
			return exitcode.New(exitcode.SolverResolution, err)
		}
		result.SolverID = id
	} else {
		fmt.Fprint(r.Out, "Solver ID not set, will use the default one. ")
	}

	desc, ok := r.Registry.Lookup(result.SolverID)
	if !ok {
		fmt.Fprintln(r.Err, "Cannot resolve the solver id to a known solver descriptor!")
		r.printExampleID()
		return exitcode.Errorf(exitcode.SolverResolution, "unknown solver id %s", solver.FormatID(result.SolverID))
	}
	fmt.Fprintf(r.Out, "Resolved solver id to: %s\n", desc.Description)

	count, err := r.resolveCount(fs, FlagGenerationCount, f.GenerationCount, "Generation count", result.GenerationCount)
	if err != nil {
		return err
	}
	result.GenerationCount = count

	count, err = r.resolveCount(fs, FlagPopulationSize, f.PopulationSize, "Population size", result.PopulationSize)
	if err != nil {
		return err
	}
	result.PopulationSize = count

	for _, raw := range f.Parameters {
		target, err := ParseTarget(raw)
		if err != nil {
			fmt.Fprintf(r.Err, "Cannot resolve a parameter to optimize: %s\n", raw)
			return exitcode.New(exitcode.OptionParse, err)
		}
		result.Targets = append(result.Targets, target)
	}
	return nil
}

func (r *Resolver) resolveCount(fs *pflag.FlagSet, flag, raw, label string, def int) (int, error) {
	if !changed(fs, flag) {
		fmt.Fprintf(r.Out, "%s not set, will use default value: %d\n", label, def)
		return def, nil
	}
	n, err := ParseCount(raw)
	if err != nil {
		fmt.Fprintf(r.Err, "Cannot resolve %s to a non-negative number!\n", strings.ToLower(label))
		return 0, exitcode.New(exitcode.OptionParse, fmt.Errorf("--%s: %w", flag, err))
	}
	fmt.Fprintf(r.Out, "%s set to: %d\n", label, n)
	return n, nil
}

func (r *Resolver) resolveVariables(raw []string) ([]Variable, error) {
	var variables []Variable
	for _, s := range r.gather(FlagVariable, raw) {
		v, err := ParseVariable(s)
		if err != nil {
			fmt.Fprintf(r.Err, "Malformed variable parameter: %s\n", s)
			return nil, exitcode.New(exitcode.OptionParse, err)
		}
		variables = append(variables, v)
	}
	return variables, nil
}

// gather drops empty values with a diagnostic.
func (r *Resolver) gather(flag string, values []string) []string {
	var result []string
	for _, v := range values {
		if v == "" {
			fmt.Fprintf(r.Err, "Detected empty value for parameter %s.\n", flag)
			continue
		}
		result = append(result, v)
	}
	return result
}

// ParseTarget parses "<index>,<name>", splitting at the first comma.
func ParseTarget(s string) (solver.Target, error) {
	index, name, ok := strings.Cut(s, ",")
	if !ok {
		return solver.Target{}, fmt.Errorf("parameter %q: expected <index>,<name>", s)
	}
	n, err := ParseCount(index)
	if err != nil {
		return solver.Target{}, fmt.Errorf("parameter %q: link index: %w", s, err)
	}
	if name == "" {
		return solver.Target{}, fmt.Errorf("parameter %q: empty parameter name", s)
	}
	return solver.Target{LinkIndex: n, Name: name}, nil
}

// ParseVariable parses "<name>:=<value>", splitting at the first ":=". The
// value may be empty; the name may not.
func ParseVariable(s string) (Variable, error) {
	name, value, ok := strings.Cut(s, ":=")
	if !ok {
		return Variable{}, fmt.Errorf("variable %q: expected <name>:=<value>", s)
	}
	if name == "" {
		return Variable{}, fmt.Errorf("variable %q: empty name", s)
	}
	return Variable{Name: name, Value: value}, nil
}

// ParseCount parses a non-negative decimal integer that fits an int.
func ParseCount(s string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, strconv.IntSize-1)
	if err != nil {
		return 0, fmt.Errorf("%q is not a non-negative integer", s)
	}
	return int(n), nil
}

func changed(fs *pflag.FlagSet, name string) bool {
	return fs != nil && fs.Changed(name)
}

// PrintUsage writes the option summary and the solver list to Out.
func (r *Resolver) PrintUsage(fs *pflag.FlagSet) {
	fmt.Fprintln(r.Out, "Usage: chainopt configuration_path [options]")
	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, "Options:")
	if fs != nil {
		fmt.Fprint(r.Out, fs.FlagUsages())
	}
	r.printSolvers()
}

func (r *Resolver) printSolvers() {
	var listed []solver.Descriptor
	for _, d := range r.Registry.Descriptors() {
		if !d.Specialized {
			listed = append(listed, d)
		}
	}
	if len(listed) == 0 {
		fmt.Fprintln(r.Out, "Warning! There's no solver descriptor actually available!")
		return
	}
	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, "Available solvers:")
	for _, d := range listed {
		fmt.Fprintf(r.Out, "%s - %s\n", solver.FormatID(d.ID), d.Description)
	}
}

func (r *Resolver) printExampleID() {
	all := r.Registry.Descriptors()
	if len(all) == 0 {
		fmt.Fprintln(r.Out, "Warning! There's no solver descriptor currently available!")
		return
	}
	fmt.Fprintf(r.Out, "Pass an id like this %s\n", solver.FormatID(all[0].ID))
}
