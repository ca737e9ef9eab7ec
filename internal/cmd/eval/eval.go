// Package eval implements the eval command: it loads a YAML fixture with a
// snapshot and a set of triggers, evaluates each trigger against the snapshot
// and prints what would fire. Useful for dry-running automations before
// enabling them.
package eval

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/snapshot"
	"github.com/powersync/powersync/internal/trigger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var Cmd = cobra.Command{
	Use:   "eval <fixture>",
	Short: "evaluate triggers against a snapshot fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getFixture(args[0])
		if err != nil {
			return err
		}
		r, err := evalTriggers(f)
		if err != nil {
			return err
		}
		r.writeTo(cmd.OutOrStdout())
		return nil
	},
}

type fixture struct {
	Snapshot snapshot.Snapshot `yaml:"snapshot"`
	Triggers []fixtureTrigger  `yaml:"triggers"`
}

type fixtureTrigger struct {
	Name   string                `yaml:"name"`
	Kind   automation.Kind       `yaml:"kind"`
	Config yaml.Node             `yaml:"config"`
	Window automation.TimeWindow `yaml:"window"`
	State  fixtureState          `yaml:"state"`
}

type fixtureState struct {
	Kind    automation.EdgeKind `yaml:"kind"`
	Value   float64             `yaml:"value"`
	Day     string              `yaml:"day"`
	FiredAt time.Time           `yaml:"fired_at"`
}

func getFixture(filename string) (fixture, error) {
	var r io.ReadCloser
	var err error
	switch filename {
	case "-":
		r = os.Stdin
	default:
		r, err = os.Open(filename)
		if err != nil {
			return fixture{}, err
		}
		defer func() { _ = r.Close() }()
	}
	var f fixture
	if err = yaml.NewDecoder(r).Decode(&f); err != nil {
		return fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

const formatString = "%-30s %-6v %-9v %s\n"

type results []result

func evalTriggers(f fixture) (results, error) {
	if f.Snapshot.Time.IsZero() {
		f.Snapshot.Time = time.Now()
	}
	var e trigger.Evaluator
	r := make(results, 0, len(f.Triggers))
	for _, ft := range f.Triggers {
		t, err := ft.trigger()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ft.Name, err)
		}
		res, updated, err := e.Evaluate(t, f.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ft.Name, err)
		}
		r = append(r, result{name: ft.Name, fired: res.Fired, updated: updated, reason: res.Reason})
	}
	return r, nil
}

func (ft fixtureTrigger) trigger() (*automation.Trigger, error) {
	cfg, err := automation.NewConfig(ft.Kind)
	if err != nil {
		return nil, err
	}
	if !ft.Config.IsZero() {
		if err = ft.Config.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	return &automation.Trigger{
		Config: cfg,
		Window: ft.Window,
		State: automation.EdgeState{
			Kind:    ft.State.Kind,
			Value:   ft.State.Value,
			Day:     ft.State.Day,
			FiredAt: ft.State.FiredAt,
		},
	}, nil
}

func (r results) writeTo(w io.Writer) {
	if len(r) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, formatString, "TRIGGER", "FIRED", "UPDATED", "REASON")
	for _, res := range r {
		res.writeTo(w)
	}
}

type result struct {
	name    string
	fired   bool
	updated bool
	reason  string
}

func (r result) writeTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, formatString, r.name, r.fired, r.updated, r.reason)
}
