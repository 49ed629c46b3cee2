package core

import (
	"fmt"
	"regexp"
)

var fieldNameParser = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Field is a named numeric result read from the instrument.
type Field struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	Unit string `yaml:"unit"`
}

func (f *Field) Compile() error {
	if !fieldNameParser.MatchString(f.Name) {
		return fmt.Errorf("invalid field name '%s'", f.Name)
	} else if f.Path == "" {
		return fmt.Errorf("field %s has no result path", f.Name)
	}
	return nil
}
