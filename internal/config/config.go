// Package config loads the ghqc options file and checklist definitions
// from a configuration directory (§6): options.yaml plus one or more
// .txt/.yaml/.yml checklist files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options is the recognized subset of options.yaml (§6).
type Options struct {
	PrependedChecklistNotes string `yaml:"prepended_checklist_notes"`
	ChecklistDisplayName    string `yaml:"checklist_display_name"`
	LogoPath                string `yaml:"logo_path"`
	ChecklistDirectory      string `yaml:"checklist_directory"`
}

// DefaultOptions returns the options defaults named in §6.
func DefaultOptions() Options {
	return Options{
		ChecklistDisplayName: "checklist",
		LogoPath:             "logo.png",
		ChecklistDirectory:   "checklists",
	}
}

// LoadOptions reads <dir>/options.yaml, layering its recognized keys over
// DefaultOptions. A missing file is not an error: the defaults apply.
func LoadOptions(dir string) (Options, error) {
	opts := DefaultOptions()
	path := filepath.Join(dir, "options.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, errors.Wrap(err, "reading options.yaml")
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrap(err, "parsing options.yaml")
	}
	return opts, nil
}

// Checklist is one loaded checklist: a title (rendered as the issue's
// final "# <Checklist Name>" header per §4.4) and its markdown body.
type Checklist struct {
	Name string
	Body string
}

// LoadChecklists reads every .txt/.yaml/.yml file directly under dir
// (non-recursive) into a map keyed by checklist name. A .txt file's
// filename (extension stripped; surrounding backticks removed, allowing
// names containing spaces) is the key and its contents are the body. A
// .yaml/.yml file's single root mapping key is the title; its value is
// rendered to a checkbox body by renderChecklistValue.
func LoadChecklists(dir string) (map[string]Checklist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Checklist{}, nil
		}
		return nil, errors.Wrap(err, "reading checklist directory")
	}

	out := make(map[string]Checklist, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case strings.HasSuffix(name, ".txt"):
			cl, err := loadTxtChecklist(path)
			if err != nil {
				return nil, errors.Wrapf(err, "loading %s", name)
			}
			out[cl.Name] = cl
		case strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml"):
			cl, err := loadYAMLChecklist(path)
			if err != nil {
				return nil, errors.Wrapf(err, "loading %s", name)
			}
			out[cl.Name] = cl
		}
	}
	return out, nil
}

func loadTxtChecklist(path string) (Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checklist{}, err
	}
	base := strings.TrimSuffix(filepath.Base(path), ".txt")
	base = strings.Trim(base, "`")
	return Checklist{Name: base, Body: string(data)}, nil
}

// loadYAMLChecklist parses a single-root-mapping YAML checklist file: the
// root key is the title, and the value is either a flat sequence (items
// become "- [ ] item" lines) or a nested mapping (sections become level-3
// headers, recursively).
func loadYAMLChecklist(path string) (Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checklist{}, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Checklist{}, err
	}
	if len(doc.Content) == 0 {
		return Checklist{}, errors.New("empty checklist document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode || len(root.Content) < 2 {
		return Checklist{}, errors.New("checklist root must be a single-key mapping")
	}
	title := root.Content[0].Value
	value := root.Content[1]

	var sb strings.Builder
	renderChecklistValue(&sb, value, 1)
	return Checklist{Name: title, Body: strings.TrimRight(sb.String(), "\n")}, nil
}

// renderChecklistValue renders a YAML node at the given section depth
// (depth 1 = no header yet emitted for this node's own items; section
// headers for nested mappings start at level 3 and increase with depth).
func renderChecklistValue(sb *strings.Builder, node *yaml.Node, depth int) {
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			sb.WriteString("- [ ] ")
			sb.WriteString(item.Value)
			sb.WriteString("\n")
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			val := node.Content[i+1]
			headerLevel := depth + 2
			if headerLevel > 6 {
				headerLevel = 6
			}
			sb.WriteString(strings.Repeat("#", headerLevel))
			sb.WriteString(" ")
			sb.WriteString(key.Value)
			sb.WriteString("\n\n")
			renderChecklistValue(sb, val, depth+1)
			sb.WriteString("\n")
		}
	case yaml.ScalarNode:
		sb.WriteString("- [ ] ")
		sb.WriteString(node.Value)
		sb.WriteString("\n")
	}
}
