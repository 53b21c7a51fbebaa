package domain

// VizState is the discriminator of a Directive.
type VizState string

const (
	VizOverview    VizState = "overview"
	VizEntry       VizState = "entry"
	VizExploration VizState = "exploration"
	VizPurchase    VizState = "purchase"
	VizTopdown     VizState = "topdown"
)

// Valid reports whether v is a known scene state.
func (v VizState) Valid() bool {
	switch v {
	case VizOverview, VizEntry, VizExploration, VizPurchase, VizTopdown:
		return true
	}
	return false
}

// Update modes. A partial update only re-renders ChangedZones.
const (
	UpdateFull    = "full"
	UpdatePartial = "partial"
)

// ValidStage reports whether s is a known journey stage.
func ValidStage(s string) bool {
	return s == "entry" || s == "exploration" || s == "purchase"
}

// ValidCameraAngle reports whether s is a known camera preset.
func ValidCameraAngle(s string) bool {
	return s == "front" || s == "side" || s == "top" || s == "perspective"
}

// ValidZoneType reports whether s is a known zone type.
func ValidZoneType(s string) bool {
	switch s {
	case "entrance", "display", "fitting_room", "checkout", "storage", "promotion", "aisle", "rest":
		return true
	}
	return false
}

// ValidTrend reports whether s is a known KPI trend.
func ValidTrend(s string) bool {
	return s == "up" || s == "down" || s == "flat"
}

// Directive is the structured scene payload embedded in a chat response.
type Directive struct {
	VizState     VizState             `json:"vizState"`
	Highlights   []string             `json:"highlights,omitempty"`
	Zones        []Zone               `json:"zones,omitempty"`
	Annotations  []Annotation         `json:"annotations,omitempty"`
	KPIs         []KPI                `json:"kpis,omitempty"`
	Stage        string               `json:"stage,omitempty"`
	StoreParams  *StoreParams         `json:"storeParams,omitempty"`
	ZoneScale    map[string]ZoneScale `json:"zoneScale,omitempty"`
	FocusZone    string               `json:"focusZone,omitempty"`
	CameraAngle  string               `json:"cameraAngle,omitempty"`
	UpdateMode   string               `json:"updateMode,omitempty"`
	ChangedZones []string             `json:"changedZones,omitempty"`
	Compare      *Compare             `json:"compare,omitempty"`
}

// ZoneIDs returns the ids of d's zones in order.
func (d *Directive) ZoneIDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, len(d.Zones))
	for _, z := range d.Zones {
		ids = append(ids, z.ID)
	}
	return ids
}

// Zone is a rectangular region of the depicted space, centered at (X, Z).
type Zone struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	W     float64 `json:"w"`
	D     float64 `json:"d"`
	Color string  `json:"color,omitempty"`
	Type  string  `json:"type,omitempty"`
}

// Annotation attaches a callout to a zone.
type Annotation struct {
	ZoneID string `json:"zoneId"`
	Text   string `json:"text"`
	Color  string `json:"color,omitempty"`
}

// KPI is a metric tile rendered next to the scene.
type KPI struct {
	Label     string   `json:"label"`
	Value     any      `json:"value"` // string or number, passed through as sent
	Sub       string   `json:"sub,omitempty"`
	Alert     bool     `json:"alert,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
	Gauge     *float64 `json:"gauge,omitempty"`
	Trend     string   `json:"trend,omitempty"`
}

// StoreParams sizes the depicted space.
type StoreParams struct {
	Width            float64 `json:"width"`
	Depth            float64 `json:"depth"`
	Height           float64 `json:"height"`
	FittingRoomCount int     `json:"fittingRoomCount"`
}

// ZoneScale resizes a zone relative to its declared footprint.
type ZoneScale struct {
	ScaleX float64 `json:"scaleX"`
	ScaleZ float64 `json:"scaleZ"`
}

// Compare is an independent before-snapshot for before/after rendering.
type Compare struct {
	BeforeLabel string `json:"beforeLabel,omitempty"`
	AfterLabel  string `json:"afterLabel,omitempty"`
	BeforeZones []Zone `json:"beforeZones"`
}
