package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileField is one entry of a YAML schema definition:
//
//	fields:
//	  - name: title
//	    type: text
//	    stored: true
type fileField struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Stored    bool   `yaml:"stored"`
	Indexed   bool   `yaml:"indexed"`
	Tokenizer string `yaml:"tokenizer"`
}

type fileSchema struct {
	Fields []fileField `yaml:"fields"`
}

// Parse builds a schema from a YAML definition.
func Parse(data []byte) (*Schema, error) {
	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	b := NewBuilder()
	for _, f := range fs.Fields {
		typ, err := ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		opts := FieldOptions{Stored: f.Stored, Indexed: f.Indexed, Tokenizer: f.Tokenizer}
		if _, err := b.AddField(f.Name, typ, opts); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// LoadFile reads a YAML schema definition from path.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders s in the format accepted by Parse.
func Marshal(s *Schema) ([]byte, error) {
	fs := fileSchema{Fields: make([]fileField, 0, s.NumFields())}
	for _, e := range s.entries {
		fs.Fields = append(fs.Fields, fileField{
			Name:      e.Name,
			Type:      e.Type.String(),
			Stored:    e.Options.Stored,
			Indexed:   e.Options.Indexed,
			Tokenizer: e.Options.Tokenizer,
		})
	}
	return yaml.Marshal(fs)
}
