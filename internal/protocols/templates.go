package protocols

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

//go:embed templates.yaml
var templatesYAML []byte

type templateFile struct {
	Templates map[string]struct {
		Fields []string `yaml:"fields"`
	} `yaml:"templates"`
}

// TemplateCatalog is the parsed set of named channel-order templates
// (RGB, RGBCT, DIMRGB, DIMRGBCT, DIMCT) used by create_template_mappings.
type TemplateCatalog struct {
	templates map[string][]string
}

// LoadTemplates parses the built-in templates.yaml fixture.
func LoadTemplates() (*TemplateCatalog, error) {
	var parsed templateFile
	if err := yaml.Unmarshal(templatesYAML, &parsed); err != nil {
		return nil, fmt.Errorf("protocols: parse templates.yaml: %w", err)
	}
	catalog := &TemplateCatalog{templates: map[string][]string{}}
	for name, def := range parsed.Templates {
		catalog.templates[name] = def.Fields
	}
	return catalog, nil
}

// ExpandTemplate turns a named template into a single contiguous range
// MappingSpec for deviceID on universe starting at startChannel, validating
// each field against the device's capabilities (spec §8 Template expansion
// property).
func (c *TemplateCatalog) ExpandTemplate(template string, deviceID string, universe uint16, startChannel int, caps capabilities.NormalizedCapabilities) (store.MappingSpec, error) {
	fields, ok := c.templates[template]
	if !ok {
		return store.MappingSpec{}, fmt.Errorf("protocols: unknown template %q", template)
	}
	for _, field := range fields {
		if err := capabilities.ValidateMappingField(field, caps); err != nil {
			return store.MappingSpec{}, fmt.Errorf("protocols: template %q field %q: %w", template, field, err)
		}
	}
	return store.MappingSpec{
		DeviceID:    deviceID,
		Universe:    universe,
		Channel:     startChannel,
		Length:      len(fields),
		MappingType: "range",
		Fields:      fields,
	}, nil
}

// Names returns the loaded template names, for admin/listing use.
func (c *TemplateCatalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	return names
}
