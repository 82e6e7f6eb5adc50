package align

// Config represents the full configuration file
type Config struct {
	Plan  PlanConfig  `yaml:"plan" json:"plan"`
	Apply ApplyConfig `yaml:"apply,omitempty" json:"apply,omitempty"`
	MQTT  MQTTConfig  `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	HTTP  HTTPConfig  `yaml:"http,omitempty" json:"http,omitempty"`
	Log   LogConfig   `yaml:"log,omitempty" json:"log,omitempty"`
}

// PlanConfig describes the floor plan the anchors belong to
type PlanConfig struct {
	Name      string            `yaml:"name,omitempty" json:"name,omitempty"`
	UnitScale float64           `yaml:"unitScale,omitempty" json:"unitScale,omitempty"` // plan units -> metres (0.001 for mm drawings); default 1
	Anchors   PlanAnchorsConfig `yaml:"anchors" json:"anchors"`
}

// PlanAnchorsConfig holds the two plan-space anchors in plan units
type PlanAnchorsConfig struct {
	A1 *Point2 `yaml:"a1" json:"a1"`
	A2 *Point2 `yaml:"a2" json:"a2"`
}

// ApplyConfig selects the applier policy
type ApplyConfig struct {
	VerticalScale VerticalScaleMode `yaml:"verticalScale,omitempty" json:"verticalScale,omitempty"` // flat (default) or uniform
	Height        HeightMode        `yaml:"height,omitempty" json:"height,omitempty"`               // zero (default) or keep
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	HitTopic      string `yaml:"hitTopic,omitempty" json:"hitTopic,omitempty"`
	CommandTopic  string `yaml:"commandTopic,omitempty" json:"commandTopic,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string `yaml:"level,omitempty" json:"level,omitempty"`       // debug, info, warn, error
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"` // json or console
}

const (
	DefaultClientID      = "planalign"
	DefaultPublishPrefix = "planalign"
	DefaultHitTopic      = "planalign/hit"
	DefaultCommandTopic  = "planalign/command"
	DefaultHTTPPort      = 8080
)

// GetUnitScale returns the plan unit scale or 1 if not set
func (pc *PlanConfig) GetUnitScale() float64 {
	if pc.UnitScale > 0 {
		return pc.UnitScale
	}
	return 1
}

// PlanAnchors returns the configured anchors converted to metres.
// Missing anchors come back as the origin; LoadConfig rejects them earlier.
func (c *Config) PlanAnchors() PlanAnchors {
	s := c.Plan.GetUnitScale()
	var pa PlanAnchors
	if c.Plan.Anchors.A1 != nil {
		pa.A1 = c.Plan.Anchors.A1.Scale(s)
	}
	if c.Plan.Anchors.A2 != nil {
		pa.A2 = c.Plan.Anchors.A2.Scale(s)
	}
	return pa
}

// Applier builds the applier described by the apply section.
func (c *Config) Applier() *Applier {
	ap := NewApplier()
	if c.Apply.VerticalScale != "" {
		ap.VerticalScale = c.Apply.VerticalScale
	}
	if c.Apply.Height != "" {
		ap.Height = c.Apply.Height
	}
	return ap
}

// GetHitTopic returns the hit topic or the default
func (mc *MQTTConfig) GetHitTopic() string {
	if mc.HitTopic != "" {
		return mc.HitTopic
	}
	return DefaultHitTopic
}

// GetCommandTopic returns the command topic or the default
func (mc *MQTTConfig) GetCommandTopic() string {
	if mc.CommandTopic != "" {
		return mc.CommandTopic
	}
	return DefaultCommandTopic
}

// GetPort returns the HTTP port or the default
func (hc *HTTPConfig) GetPort() int {
	if hc.Port > 0 {
		return hc.Port
	}
	return DefaultHTTPPort
}
