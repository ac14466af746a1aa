package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where browsers look for native messaging host manifests.
const DefaultDir = "/usr/lib/mozilla/native-messaging-hosts"

// KindStdio is the only target kind that can be proxied.
const KindStdio = "stdio"

var (
	ErrNotFound        = errors.New("registry: no such target")
	ErrUnsupportedKind = errors.New("registry: unsupported target kind")
)

// Descriptor describes one invocable target program.
type Descriptor struct {
	Name              string   `json:"name" yaml:"name"`
	Description       string   `json:"description" yaml:"description"`
	Path              string   `json:"path" yaml:"path"`
	Type              string   `json:"type" yaml:"type"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty" yaml:"allowed_extensions,omitempty"`
}

// Registry is an immutable name->descriptor mapping. It is safe for concurrent use
// because nothing mutates it after construction.
type Registry struct {
	targets map[string]Descriptor
}

// New builds a registry from descriptors. Later duplicates of a name are ignored.
func New(descs ...Descriptor) *Registry {
	r := &Registry{targets: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if _, ok := r.targets[d.Name]; ok {
			continue
		}
		r.targets[d.Name] = d
	}
	return r
}

// Load reads every *.json, *.yaml and *.yml descriptor in dir.
// Failing to read dir is an error; a file that does not parse as a descriptor is
// skipped with a warning.
func Load(log *zap.SugaredLogger, dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading registry dir: %w", err)
	}

	var descs []Descriptor
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		d, ok, err := readDescriptor(path)
		if !ok {
			continue
		}
		if err != nil {
			log.Warnw("skipping unreadable descriptor", "Path", path, "Error", err)
			continue
		}
		if d.Name == "" {
			log.Warnw("skipping descriptor without a name", "Path", path)
			continue
		}
		if prev, dup := seen[d.Name]; dup {
			log.Warnw("duplicate target name, keeping first", "Name", d.Name, "Kept", prev, "Skipped", path)
			continue
		}
		seen[d.Name] = path
		descs = append(descs, d)
	}

	log.Debugw("loaded registry", "Dir", dir, "Targets", len(descs))
	return New(descs...), nil
}

// readDescriptor reports ok=false for files that are not descriptors at all.
func readDescriptor(path string) (Descriptor, bool, error) {
	var unmarshal func([]byte, any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return Descriptor{}, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, true, err
	}
	var d Descriptor
	if err := unmarshal(b, &d); err != nil {
		return Descriptor{}, true, err
	}
	return d, true, nil
}

// Resolve returns the descriptor for name. A known target with a kind other than
// KindStdio returns the descriptor together with ErrUnsupportedKind.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.targets[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if d.Type != KindStdio {
		return d, fmt.Errorf("%w: %q has type %q", ErrUnsupportedKind, name, d.Type)
	}
	return d, nil
}

func (r *Registry) Len() int {
	return len(r.targets)
}

// Descriptors returns all targets sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	descs := make([]Descriptor, 0, len(r.targets))
	for _, d := range r.targets {
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}
