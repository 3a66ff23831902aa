// Package dataset reads the on-disk benchmark layout:
//
//	<base>/<domain>/domain.pddl
//	<base>/<domain>/domain_template.pddl
//	<base>/<domain>/domain.nl
//	<base>/<domain>/predicate_descriptor.go   (optional)
//	<base>/<domain>/pNN.pddl, pNN.nl, pNN_template.pddl
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/sandbox"
)

// DomainNames lists the benchmark domains.
var DomainNames = []string{
	"barman", "blocksworld", "floortile", "grippers", "grippers-ood", "storage", "termes", "tyreworld",
	"manipulation", "childsnack-opt14-strips", "depot", "driverlog", "hiking-agl14-strips", "logistics00",
	"miconic", "movie", "mprime", "openstacks", "parking-opt11-strips", "rovers", "satellite",
	"scanalyzer-08-strips", "trucks", "zenotravel",
}

// MaxTasks is the highest task number probed.
const MaxTasks = 99

// DescriptorFile holds a domain's predicate describer source.
const DescriptorFile = "predicate_descriptor.go"

var (
	// ErrUnknownDomain is returned for names outside DomainNames.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrNoTask is returned for task indexes out of range.
	ErrNoTask = errors.New("no such task")
)

// Domain is one benchmark directory.
type Domain struct {
	Name string
	Dir  string

	tasks []string
}

// Task is one problem instance with its description and template.
type Task struct {
	Index    int
	Name     string
	PDDL     string
	NL       string
	Template string
}

// Open loads the task list of base/name.
func Open(base, name string) (*Domain, error) {
	if !slices.Contains(DomainNames, name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	dir := filepath.Join(base, name)
	if st, err := os.Stat(dir); err != nil {
		return nil, err
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	d := &Domain{Name: name, Dir: dir}
	for i := 1; i <= MaxTasks; i++ {
		f := fmt.Sprintf("p%02d.pddl", i)
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			d.tasks = append(d.tasks, f)
		}
	}
	return d, nil
}

// Len is the number of tasks.
func (d *Domain) Len() int { return len(d.tasks) }

// TaskNames returns the task file names in order.
func (d *Domain) TaskNames() []string { return append([]string(nil), d.tasks...) }

func (d *Domain) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Dir, name))
	if err != nil {
		return "", fmt.Errorf("read %s/%s: %w", d.Name, name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// DomainPDDL returns the ground-truth domain.
func (d *Domain) DomainPDDL() (string, error) { return d.read("domain.pddl") }

// Template returns the domain template.
func (d *Domain) Template() (string, error) { return d.read("domain_template.pddl") }

// NL returns the natural-language domain description.
func (d *Domain) NL() (string, error) { return d.read("domain.nl") }

// Task reads task i (zero based).
func (d *Domain) Task(i int) (Task, error) {
	if i < 0 || i >= len(d.tasks) {
		return Task{}, fmt.Errorf("%w: %s has %d tasks, asked for %d", ErrNoTask, d.Name, len(d.tasks), i)
	}
	name := d.tasks[i]
	base := strings.TrimSuffix(name, ".pddl")
	t := Task{Index: i, Name: name}
	var err error
	if t.PDDL, err = d.read(name); err != nil {
		return Task{}, err
	}
	if t.NL, err = d.read(base + ".nl"); err != nil {
		return Task{}, err
	}
	if t.Template, err = d.read(base + "_template.pddl"); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Problems returns the PDDL of the first n tasks (all when n <= 0).
func (d *Domain) Problems(n int) ([]string, error) {
	if n <= 0 || n > len(d.tasks) {
		n = len(d.tasks)
	}
	out := make([]string, n)
	for i := range out {
		t, err := d.Task(i)
		if err != nil {
			return nil, err
		}
		out[i] = t.PDDL
	}
	return out, nil
}

// Describer loads predicate_descriptor.go when present, falling back to a
// builtin describer of the same name and then to describe.Null.
func (d *Domain) Describer(ctx context.Context, x *sandbox.Executor) (describe.Describer, error) {
	src, err := os.ReadFile(filepath.Join(d.Dir, DescriptorFile))
	switch {
	case err == nil:
		return describe.LoadScript(ctx, x, string(src))
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	if b, ok := describe.Builtin(d.Name); ok {
		return b, nil
	}
	return describe.Null, nil
}
