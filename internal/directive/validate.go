package directive

import (
	"math"
	"regexp"
	"slices"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Layout bounds.
const (
	MaxZones        = 10
	MaxAnnotations  = 3
	MaxKPIs         = 4
	MinCompareZones = 2

	coordMin, coordMax   = -10.0, 10.0
	sizeMin, sizeMax     = 2.0, 15.0
	storeMin, storeMax   = 10.0, 50.0
	heightMin, heightMax = 3.0, 8.0
	roomsMin, roomsMax   = 1, 10
	scaleMin, scaleMax   = 0.5, 2.0
	gaugeMin, gaugeMax   = 0.0, 100.0

	// OverlapMargin is the overlap tolerated on both axes between two zones.
	OverlapMargin = 0.5
	overlapSlack  = 0.01

	DefaultZoneColor       = "#4A90D9"
	DefaultAnnotationColor = "#FF6B35"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validator enforces ranges and references on a parsed directive and pushes
// overlapping zones apart.
type Validator struct {
	// OverlapPasses is how many times every zone pair is checked. Values
	// below 1 mean one pass.
	OverlapPasses int
	// Labels localizes zone labels; nil leaves them as written.
	Labels *Labels
}

// NewValidator returns a validator with the given number of overlap passes
// and the default label locale.
func NewValidator(overlapPasses int) *Validator {
	labels, _ := LabelsFor(DefaultLabelLocale)
	return &Validator{OverlapPasses: overlapPasses, Labels: labels}
}

// Validate returns a corrected copy of d, or false when d has no usable vizState.
// known lists zone ids from an earlier turn; references are checked against it
// when d itself carries no zones.
func (v *Validator) Validate(d *domain.Directive, known []string) (*domain.Directive, bool) {
	if d == nil || !d.VizState.Valid() {
		return nil, false
	}

	out := *d
	out.Zones = v.zones(d.Zones)

	if d.StoreParams != nil {
		sp := *d.StoreParams
		sp.Width = clamp(sp.Width, storeMin, storeMax)
		sp.Depth = clamp(sp.Depth, storeMin, storeMax)
		sp.Height = clamp(sp.Height, heightMin, heightMax)
		sp.FittingRoomCount = min(max(sp.FittingRoomCount, roomsMin), roomsMax)
		out.StoreParams = &sp
	}

	out.Annotations = capped(d.Annotations, MaxAnnotations)
	out.KPIs = capped(d.KPIs, MaxKPIs)
	for i := range out.KPIs {
		k := &out.KPIs[i]
		if k.Gauge != nil {
			g := clamp(*k.Gauge, gaugeMin, gaugeMax)
			k.Gauge = &g
		}
		if !domain.ValidTrend(k.Trend) {
			k.Trend = ""
		}
	}

	valid := referenceSet(out.Zones, known)

	out.Highlights = filterIDs(d.Highlights, valid)

	annotations := make([]domain.Annotation, 0, len(out.Annotations))
	for _, a := range out.Annotations {
		if !valid.has(a.ZoneID) {
			continue
		}
		if !colorPattern.MatchString(a.Color) {
			a.Color = DefaultAnnotationColor
		}
		annotations = append(annotations, a)
	}
	out.Annotations = nilIfEmpty(annotations)

	if out.FocusZone != "" && !valid.has(out.FocusZone) {
		out.FocusZone = ""
	}

	if d.ZoneScale != nil {
		scale := make(map[string]domain.ZoneScale, len(d.ZoneScale))
		for id, s := range d.ZoneScale {
			if !valid.has(id) {
				continue
			}
			scale[id] = domain.ZoneScale{
				ScaleX: clamp(s.ScaleX, scaleMin, scaleMax),
				ScaleZ: clamp(s.ScaleZ, scaleMin, scaleMax),
			}
		}
		out.ZoneScale = scale
		if len(scale) == 0 {
			out.ZoneScale = nil
		}
	}

	if !domain.ValidStage(out.Stage) {
		out.Stage = ""
	}
	if !domain.ValidCameraAngle(out.CameraAngle) {
		out.CameraAngle = ""
	}
	if out.UpdateMode != domain.UpdatePartial {
		out.UpdateMode = domain.UpdateFull
		out.ChangedZones = nil
	} else {
		out.ChangedZones = filterIDs(d.ChangedZones, valid)
	}

	if d.Compare != nil {
		cmp := *d.Compare
		cmp.BeforeZones = v.zones(d.Compare.BeforeZones)
		out.Compare = &cmp
		if len(cmp.BeforeZones) < MinCompareZones {
			out.Compare = nil
		}
	}

	return &out, true
}

// zones normalizes one zone snapshot: cap, clamp, defaults, labels, overlap.
func (v *Validator) zones(in []domain.Zone) []domain.Zone {
	if len(in) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(in))
	zones := make([]domain.Zone, 0, min(len(in), MaxZones))
	for _, z := range in {
		if len(zones) == MaxZones {
			break
		}
		// A zone nothing can reference is dropped.
		if z.ID == "" || seen[z.ID] {
			continue
		}
		seen[z.ID] = true

		z.X = clamp(z.X, coordMin, coordMax)
		z.Z = clamp(z.Z, coordMin, coordMax)
		z.W = clamp(z.W, sizeMin, sizeMax)
		z.D = clamp(z.D, sizeMin, sizeMax)
		if !colorPattern.MatchString(z.Color) {
			z.Color = DefaultZoneColor
		}
		if !domain.ValidZoneType(z.Type) {
			z.Type = ""
		}
		z.Label = v.Labels.Localize(z.ID, z.Label)
		zones = append(zones, z)
	}

	passes := max(v.OverlapPasses, 1)
	for range passes {
		if !resolveOverlaps(zones) {
			break
		}
	}
	return zones
}

// resolveOverlaps makes one pass over every pair and reports whether any zone moved.
// For each pair overlapping by more than the margin on both axes, the second
// zone is pushed along the center-to-center vector until one axis is back
// inside the margin.
func resolveOverlaps(zones []domain.Zone) bool {
	moved := false
	for i := 0; i < len(zones); i++ {
		for j := i + 1; j < len(zones); j++ {
			a, b := &zones[i], &zones[j]

			dx, dz := b.X-a.X, b.Z-a.Z
			overlapX := (a.W+b.W)/2 - math.Abs(dx)
			overlapZ := (a.D+b.D)/2 - math.Abs(dz)
			if overlapX <= OverlapMargin || overlapZ <= OverlapMargin {
				continue
			}

			ux, uz := 1.0, 0.0
			if dist := math.Hypot(dx, dz); dist > 0 {
				ux, uz = dx/dist, dz/dist
			}

			t := math.Inf(1)
			if math.Abs(ux) > 1e-9 {
				t = min(t, (overlapX-OverlapMargin+overlapSlack)/math.Abs(ux))
			}
			if math.Abs(uz) > 1e-9 {
				t = min(t, (overlapZ-OverlapMargin+overlapSlack)/math.Abs(uz))
			}

			b.X = clamp(b.X+ux*t, coordMin, coordMax)
			b.Z = clamp(b.Z+uz*t, coordMin, coordMax)
			moved = true
		}
	}
	return moved
}

// idSet is nil when references cannot be checked.
type idSet map[string]bool

func (s idSet) has(id string) bool {
	return s == nil || s[id]
}

func referenceSet(zones []domain.Zone, known []string) idSet {
	if len(zones) > 0 {
		s := make(idSet, len(zones))
		for _, z := range zones {
			s[z.ID] = true
		}
		return s
	}
	if len(known) > 0 {
		s := make(idSet, len(known))
		for _, id := range known {
			s[id] = true
		}
		return s
	}
	return nil
}

// filterIDs keeps valid ids in order, dropping duplicates.
func filterIDs(ids []string, valid idSet) []string {
	var out []string
	for _, id := range ids {
		if valid.has(id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func capped[T any](in []T, n int) []T {
	if len(in) == 0 {
		return nil
	}
	return slices.Clone(in[:min(len(in), n)])
}

func nilIfEmpty[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	return in
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
