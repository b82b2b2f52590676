// Package cliconfig manages the atgraph CLI's user-level context file
// (~/.atgraph/config.yaml): named control-plane endpoints plus a pointer to
// the current one, for the `context` subcommand. Uses the same "load into
// a struct, mutate, marshal back" idiom internal/config uses for process
// configuration, with gopkg.in/yaml.v3 for the YAML shape.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Context is one named control-plane endpoint.
type Context struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Token   string `yaml:"token,omitempty"`
}

// File is the on-disk shape of the context file.
type File struct {
	Current  string    `yaml:"current"`
	Contexts []Context `yaml:"contexts"`
}

// Path returns the default context file location, $HOME/.atgraph/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".atgraph", "config.yaml"), nil
}

// Load reads the context file, returning an empty File if it doesn't exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("read context file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse context file %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the context file, creating its parent directory as needed.
func Save(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal context file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write context file %s: %w", path, err)
	}
	return nil
}

// Find returns the named context, or an error if it doesn't exist.
func (f *File) Find(name string) (Context, error) {
	for _, c := range f.Contexts {
		if c.Name == name {
			return c, nil
		}
	}
	return Context{}, fmt.Errorf("context %q not found", name)
}

// CurrentContext returns the context named by Current.
func (f *File) CurrentContext() (Context, error) {
	if f.Current == "" {
		return Context{}, fmt.Errorf("no current context set")
	}
	return f.Find(f.Current)
}

// Upsert adds ctx, or replaces an existing context with the same name.
func (f *File) Upsert(ctx Context) {
	for i, c := range f.Contexts {
		if c.Name == ctx.Name {
			f.Contexts[i] = ctx
			return
		}
	}
	f.Contexts = append(f.Contexts, ctx)
}

// Delete removes the named context, clearing Current if it pointed there.
func (f *File) Delete(name string) error {
	for i, c := range f.Contexts {
		if c.Name == name {
			f.Contexts = append(f.Contexts[:i], f.Contexts[i+1:]...)
			if f.Current == name {
				f.Current = ""
			}
			return nil
		}
	}
	return fmt.Errorf("context %q not found", name)
}
