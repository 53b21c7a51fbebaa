package directive

import (
	"testing"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

const wellFormedBlock = `{
  "vizState": "exploration",
  "highlights": ["entrance", "fitting_room"],
  "zones": [
    {"id": "entrance", "label": "入口", "x": -8, "z": 0, "w": 3, "d": 4, "color": "#4A90D9", "type": "entrance"},
    {"id": "fitting_room", "label": "试衣间 \"A\"", "x": 6.5, "z": -4, "w": 4, "d": 3, "color": "#AA3344", "type": "fitting_room"}
  ],
  "annotations": [{"zoneId": "fitting_room", "text": "排队 5 分钟", "color": "#FF6B35"}],
  "kpis": [{"label": "转化率", "value": "12.5%", "gauge": 62, "trend": "up", "alert": false}],
  "focusZone": "fitting_room",
  "cameraAngle": "perspective",
  "updateMode": "full"
}`

func TestRepair_PreCheck(t *testing.T) {
	tests := []string{
		``,
		`{"zones":[{"id":"a"`,
		`{"vizState":"overview","highl`,
		`{"vizSt`,
	}
	for _, raw := range tests {
		if d, ok := Repair(raw); ok {
			t.Errorf("Repair(%q) = %+v, want nothing", raw, d)
		}
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantZones []string
		wantHigh  []string
	}{
		{
			name:      "cut inside string value",
			raw:       `{"vizState":"overview","zones":[{"id":"a","label":"Entr`,
			wantZones: []string{"a"},
		},
		{
			name:      "cut inside number",
			raw:       `{"vizState":"overview","zones":[{"id":"a","x":1`,
			wantZones: []string{"a"},
		},
		{
			name:      "dangling key and colon",
			raw:       `{"vizState":"overview","zones":[{"id":"a"},{"id":"b","w":`,
			wantZones: []string{"a", "b"},
		},
		{
			name:      "trailing comma",
			raw:       `{"vizState":"overview","zones":[{"id":"a"}],`,
			wantZones: []string{"a"},
		},
		{
			name:      "bare key",
			raw:       `{"vizState":"overview","zones":[{"id":"a"}],"highlights"`,
			wantZones: []string{"a"},
		},
		{
			name:      "cut inside array of strings",
			raw:       `{"vizState":"overview","zones":[{"id":"a"}],"highlights":["a","b`,
			wantZones: []string{"a"},
			wantHigh:  []string{"a"},
		},
		{
			name:      "partial literal",
			raw:       `{"vizState":"overview","zones":[{"id":"a"}],"kpis":[{"alert":tr`,
			wantZones: []string{"a"},
		},
		{
			name:      "escaped quote near the end",
			raw:       `{"vizState":"overview","zones":[{"id":"a","label":"say \"hi\"`,
			wantZones: []string{"a"},
		},
		{
			name:      "brackets inside strings are ignored",
			raw:       `{"vizState":"overview","zones":[{"id":"a","label":"[x]{y}"},{"id":"b"`,
			wantZones: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Repair(tt.raw)
			if !ok {
				t.Fatalf("Repair(%q) failed", tt.raw)
			}
			if d.VizState != domain.VizOverview {
				t.Errorf("vizState = %q", d.VizState)
			}
			if got := d.ZoneIDs(); !equalStrings(got, tt.wantZones) {
				t.Errorf("zones = %v, want %v", got, tt.wantZones)
			}
			if !equalStrings(d.Highlights, tt.wantHigh) {
				t.Errorf("highlights = %v, want %v", d.Highlights, tt.wantHigh)
			}
		})
	}
}

func TestRepair_VizStateCut(t *testing.T) {
	if d, ok := Repair(`{"zones":[],"vizState":"explor`); ok {
		t.Errorf("a cut discriminator must not survive, got %+v", d)
	}
}

func TestRepair_EveryTruncationOffset(t *testing.T) {
	orig, ok := Parse(wellFormedBlock)
	if !ok {
		t.Fatal("fixture does not parse")
	}

	recovered := 0
	for i := 0; i <= len(wellFormedBlock); i++ {
		d, ok := Repair(wellFormedBlock[:i])
		if !ok {
			continue
		}
		recovered++
		if d.VizState != orig.VizState {
			t.Fatalf("offset %d: vizState = %q, want %q", i, d.VizState, orig.VizState)
		}
	}
	if recovered == 0 {
		t.Error("no truncation offset was recoverable")
	}

	full, ok := Repair(wellFormedBlock)
	if !ok || len(full.Zones) != 2 || full.FocusZone != "fitting_room" {
		t.Errorf("untruncated block should repair to itself, got %+v", full)
	}
}

func TestStripTrailingFragment(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1,`, `{"a":1`},
		{`{"a":1, "b":`, `{"a":1`},
		{`{"a":12`, `{`},
		{`["x", "y"`, `["x", "y"`},
		{`{"a":{"b":"c"}, "d"`, `{"a":{"b":"c"}`},
		{`{"a":[1,2,`, `{"a":[1,2`},
		{`{"a":true`, `{`},
		{`{"a":"v"`, `{"a":"v"`},
	}
	for _, tt := range tests {
		if got := stripTrailingFragment(tt.in); got != tt.want {
			t.Errorf("stripTrailingFragment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenDelimiters(t *testing.T) {
	got := string(openDelimiters(`{"a":[{"b":"]}"},{`))
	if got != "{[{" {
		t.Errorf("openDelimiters = %q, want {[{", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
