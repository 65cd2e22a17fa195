package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// yamlCatalogFile is the top-level shape of a YAML catalog file
type yamlCatalogFile struct {
	Components []Component `yaml:"components"`
}

// hclCatalogFile is the top-level shape of an HCL catalog file:
//
//	component "header" {
//	  category = "general"
//	  global   = <<-EOT
//	    #include <Arduino.h>
//	  EOT
//	}
type hclCatalogFile struct {
	Components []*hclComponent `hcl:"component,block"`
}

type hclComponent struct {
	Name        string            `hcl:"name,label"`
	Category    string            `hcl:"category"`
	PrettyName  string            `hcl:"pretty_name,optional"`
	Description string            `hcl:"description,optional"`
	Global      string            `hcl:"global,optional"`
	Setup       string            `hcl:"setup,optional"`
	Loop        string            `hcl:"loop,optional"`
	Period      int               `hcl:"period,optional"`
	Defaults    map[string]string `hcl:"defaults,optional"`
}

// LoadDir reads every *.yaml, *.yml and *.hcl file below dir, in lexical
// path order, and returns their components.
func LoadDir(dir string) ([]Component, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".hcl":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog directory %s: %w", dir, err)
	}
	sort.Strings(files)

	parser := hclparse.NewParser()
	var components []Component
	for _, file := range files {
		var loaded []Component
		if strings.EqualFold(filepath.Ext(file), ".hcl") {
			loaded, err = loadHCL(parser, file)
		} else {
			loaded, err = loadYAML(file)
		}
		if err != nil {
			return nil, err
		}
		log.Debug("Loaded catalog file", "path", file, "components", len(loaded))
		components = append(components, loaded...)
	}
	return components, nil
}

func loadYAML(path string) ([]Component, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return ParseYAML(data, path)
}

// ParseYAML decodes a YAML catalog document. name is used in error messages.
func ParseYAML(data []byte, name string) ([]Component, error) {
	var file yamlCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file %s: %w", name, err)
	}
	for i := range file.Components {
		if err := file.Components[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: component %d: %w", name, i, err)
		}
	}
	return file.Components, nil
}

func loadHCL(parser *hclparse.Parser, path string) ([]Component, error) {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, diags)
	}
	return decodeHCL(hclFile.Body, path)
}

// ParseHCL decodes an HCL catalog document. name is used as its filename.
func ParseHCL(data []byte, name string) ([]Component, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", name, diags)
	}
	return decodeHCL(hclFile.Body, name)
}

func decodeHCL(body hcl.Body, name string) ([]Component, error) {
	var parsed hclCatalogFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode catalog file %s: %w", name, diags)
	}

	components := make([]Component, 0, len(parsed.Components))
	for _, hc := range parsed.Components {
		comp := Component{
			Name:        hc.Name,
			Category:    hc.Category,
			PrettyName:  hc.PrettyName,
			Description: hc.Description,
			Global:      hc.Global,
			Setup:       hc.Setup,
			Loop:        hc.Loop,
			Period:      hc.Period,
			Defaults:    hc.Defaults,
		}
		if err := comp.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		components = append(components, comp)
	}
	return components, nil
}
