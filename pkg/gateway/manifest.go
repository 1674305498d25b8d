package gateway

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// Manifest is the fixed list of shell assets the kiosk needs to boot with no
// network at all. Anything missing from it will not be available offline on
// first load.
type Manifest struct {
	// Version is the deployment marker embedded in the generation name.
	Version int
	// Shell is the path of the shell document served for offline navigations.
	Shell string
	// Assets are the request paths cached at install time. Must include Shell.
	Assets []string
}

// LoadManifestFile reads a shell manifest from a JSON file of the form
//
//	{"version": 3, "shell": "/index.html", "assets": ["/", "/index.html", ...]}
func LoadManifestFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return Manifest{}, fmt.Errorf("manifest %s is not valid JSON", path)
	}

	m := Manifest{
		Version: int(gjson.GetBytes(data, "version").Int()),
		Shell:   gjson.GetBytes(data, "shell").String(),
	}
	for _, a := range gjson.GetBytes(data, "assets").Array() {
		m.Assets = append(m.Assets, a.String())
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Validate checks the manifest is usable: versioned, non-empty, and with the
// shell document among the assets.
func (m Manifest) Validate() error {
	if m.Version <= 0 {
		return fmt.Errorf("version must be positive, got %d", m.Version)
	}
	if m.Shell == "" {
		return fmt.Errorf("shell document path is required")
	}
	if len(m.Assets) == 0 {
		return fmt.Errorf("asset list is empty")
	}
	for _, a := range m.Assets {
		if a == m.Shell {
			return nil
		}
	}
	return fmt.Errorf("shell document %s is not in the asset list", m.Shell)
}
