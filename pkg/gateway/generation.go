package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

const generationPrefix = "shell-v"

// Generation identifies one named snapshot of cached responses. Exactly one
// generation is current at a time; all others are stale and get purged at
// activation.
type Generation struct {
	Name    string
	Version int
}

// NewGeneration derives the generation for a shell version marker.
// Bumping the marker on deployment is the only cache invalidation mechanism.
func NewGeneration(version int) Generation {
	return Generation{
		Name:    fmt.Sprintf("%s%d", generationPrefix, version),
		Version: version,
	}
}

// ParseGeneration recovers the generation from an on-disk name.
func ParseGeneration(name string) (Generation, error) {
	if !strings.HasPrefix(name, generationPrefix) {
		return Generation{}, fmt.Errorf("not a generation name: %q", name)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(name, generationPrefix))
	if err != nil {
		return Generation{}, fmt.Errorf("not a generation name: %q", name)
	}
	return Generation{Name: name, Version: version}, nil
}

func (g Generation) String() string {
	return g.Name
}
