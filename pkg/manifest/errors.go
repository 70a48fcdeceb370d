package manifest

import (
	"fmt"
	"strings"
)

// SchemaError is returned when the manifest was written by a newer version of the tool.
type SchemaError struct {
	Path      string
	Found     int
	Supported int
}

var _ error = (*SchemaError)(nil)

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s has manifest version %d but only versions up to %d are supported", e.Path, e.Found, e.Supported)
}

func (e *SchemaError) Suggestions() []string {
	return []string{
		"install an older version of mono",
		"or upgrade mono to a release that understands this manifest",
	}
}

// NotFoundError is returned when a manifest, project or target is missing.
type NotFoundError struct {
	What  string
	Name  string
	Hints []string
}

var _ error = (*NotFoundError)(nil)

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.What, e.Name)
}

func (e *NotFoundError) Suggestions() []string {
	return e.Hints
}

// CycleError is returned when the dependency graph contains a cycle.
type CycleError struct {
	Path []string
}

var _ error = (*CycleError)(nil)

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Suggestions() []string {
	return []string{
		"remove one of the dependencies along the cycle from the manifest",
	}
}
