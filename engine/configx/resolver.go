package configx

// Resolver merges per-layer ConfigSpec overlays into one final spec, higher
// layers overriding lower ones. Every merged value is deep-cloned so later
// mutation of an input spec never leaks into a resolved result.
type Resolver struct{}

// NewResolver builds a Resolver. Stateless; exists so call sites read the
// same way the teacher's configx resolver does.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve merges layers (keyed by the Layer* constants) in precedence
// order and returns the combined spec.
func (r *Resolver) Resolve(layers map[int]*ConfigSpec) *ConfigSpec {
	final := &ConfigSpec{}
	for _, layer := range PrecedenceOrder() {
		spec, ok := layers[layer]
		if !ok || spec == nil {
			continue
		}
		final.mergeFrom(spec)
	}
	return final
}

func (c *ConfigSpec) mergeFrom(other *ConfigSpec) {
	if other.Global != nil {
		if c.Global == nil {
			c.Global = &GlobalSection{}
		}
		if other.Global.MaxConcurrency != 0 {
			c.Global.MaxConcurrency = other.Global.MaxConcurrency
		}
		if other.Global.LogLevel != "" {
			c.Global.LogLevel = other.Global.LogLevel
		}
		if other.Global.MetricsEnabled {
			c.Global.MetricsEnabled = true
		}
	}
	if other.Detector != nil {
		d := *other.Detector
		c.Detector = &d
	}
	if other.Alerting != nil {
		a := cloneAlertingSection(other.Alerting)
		c.Alerting = a
	}
	if other.Sources != nil {
		c.mergeSources(other.Sources)
	}
}

func (c *ConfigSpec) mergeSources(other *SourcesSection) {
	if c.Sources == nil {
		c.Sources = &SourcesSection{Overrides: make(map[string]*SourceOverride)}
	}
	if c.Sources.Overrides == nil {
		c.Sources.Overrides = make(map[string]*SourceOverride)
	}
	for id, ov := range other.Overrides {
		if ov == nil {
			continue
		}
		cloned := *ov
		cloned.Tags = append([]string(nil), ov.Tags...)
		c.Sources.Overrides[id] = &cloned
	}
}

func cloneAlertingSection(a *AlertingSection) *AlertingSection {
	cloned := *a
	cloned.Channels = append([]string(nil), a.Channels...)
	return &cloned
}
