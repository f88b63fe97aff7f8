// Package knob implements the configuration registry shared by the engine
// components.
//
// Components register the options they understand during their Register
// phase; the CLI binds the whole registry onto its flag set, optionally
// overlays a YAML config file, and the components read back typed values
// during Setup. Option names are part of the stable external contract.
package knob

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Knob is a registry of named string/bool/int options.
//
// Registration happens single-threaded at startup; value reads may come
// from any thread once the program runs.
type Knob struct {
	mu    sync.Mutex
	flags *pflag.FlagSet
}

// New creates an empty registry backed by its own flag set.
func New() *Knob {
	return &Knob{flags: pflag.NewFlagSet("raceverify", pflag.ContinueOnError)}
}

// RegisterBool registers a boolean option. Registering a name twice keeps
// the first registration; analyzers share option names deliberately.
func (k *Knob) RegisterBool(name, desc string, def bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.flags.Lookup(name) == nil {
		k.flags.Bool(name, def, desc)
	}
}

// RegisterStr registers a string option.
func (k *Knob) RegisterStr(name, desc, def string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.flags.Lookup(name) == nil {
		k.flags.String(name, def, desc)
	}
}

// RegisterInt registers an integer option.
func (k *Knob) RegisterInt(name, desc string, def int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.flags.Lookup(name) == nil {
		k.flags.Int(name, def, desc)
	}
}

// ValueBool returns the value of a registered boolean option. Reading an
// unregistered name is a programming error and returns the zero value.
func (k *Knob) ValueBool(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, err := k.flags.GetBool(name)
	if err != nil {
		return false
	}
	return v
}

// ValueStr returns the value of a registered string option.
func (k *Knob) ValueStr(name string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, err := k.flags.GetString(name)
	if err != nil {
		return ""
	}
	return v
}

// ValueInt returns the value of a registered integer option.
func (k *Knob) ValueInt(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, err := k.flags.GetInt(name)
	if err != nil {
		return 0
	}
	return v
}

// Set assigns a value to a registered option, as if it had been given on
// the command line.
func (k *Knob) Set(name, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return errors.Wrapf(k.flags.Set(name, value), "knob: set %s", name)
}

// AddTo copies every registered option onto an external flag set so the
// CLI exposes them directly.
func (k *Knob) AddTo(fs *pflag.FlagSet) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.flags.VisitAll(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil {
			fs.AddFlag(f)
		}
	})
}

// LoadFile overlays option values from a YAML file of name: value pairs.
// Values already changed from their defaults (command-line wins) are left
// alone. A missing file is not an error.
func (k *Knob) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "knob: read %s", path)
	}
	values := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &values); err != nil {
		return errors.Wrapf(err, "knob: parse %s", path)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for name, value := range values {
		f := k.flags.Lookup(name)
		if f == nil {
			return errors.Newf("knob: unknown option %q in %s", name, path)
		}
		if f.Changed {
			continue
		}
		if err := k.flags.Set(name, fmt.Sprintf("%v", value)); err != nil {
			return errors.Wrapf(err, "knob: option %q in %s", name, path)
		}
	}
	return nil
}
