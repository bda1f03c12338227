package discovery

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/manifest"
)

// manifestFromPackageJSON normalizes a script extension's package.json
// into a plugin manifest. The layout follows the well-known third-party
// extension format: name/title/description/author at the top level and
// a commands array describing what the extension contributes.
func manifestFromPackageJSON(path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("package.json is not valid JSON")
	}

	pkg := gjson.ParseBytes(data)

	name := pkg.Get("name").String()
	if name == "" {
		return nil, fmt.Errorf("package.json has no name")
	}

	m := &manifest.Manifest{
		ID:          manifest.NormalizeID(name),
		Name:        firstNonEmpty(pkg.Get("title").String(), name),
		Version:     firstNonEmpty(pkg.Get("version").String(), "0.0.0"),
		Description: pkg.Get("description").String(),
		Author:      pkg.Get("author").String(),
		Environment: make(map[string]string),
	}

	for _, cmd := range pkg.Get("commands").Array() {
		m.Commands = append(m.Commands, manifest.Command{
			ID:          m.ID + "." + cmd.Get("name").String(),
			Title:       cmd.Get("title").String(),
			Description: cmd.Get("description").String(),
			Mode:        cmd.Get("mode").String(),
		})
	}

	for _, pref := range pkg.Get("preferences").Array() {
		m.Configuration = append(m.Configuration, manifest.ConfigField{
			Name:        pref.Get("name").String(),
			Type:        normalizePreferenceType(pref.Get("type").String()),
			Default:     pref.Get("default").Value(),
			Description: pref.Get("description").String(),
			Required:    pref.Get("required").Bool(),
		})
	}

	// Extensions may declare capabilities explicitly; otherwise every
	// script extension gets search, since its commands answer queries.
	if caps := pkg.Get("capabilities").Array(); len(caps) > 0 {
		for _, c := range caps {
			cap := capability.Capability(c.String())
			if !capability.IsValid(cap) {
				return nil, fmt.Errorf("package.json declares unknown capability %q", c.String())
			}
			m.Capabilities = append(m.Capabilities, cap)
		}
	} else {
		m.Capabilities = []capability.Capability{capability.CapabilitySearch}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// normalizePreferenceType maps extension preference types onto manifest
// configuration types.
func normalizePreferenceType(t string) string {
	switch t {
	case "textfield", "password", "dropdown":
		return "string"
	case "checkbox":
		return "boolean"
	case "":
		return "string"
	default:
		return t
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
