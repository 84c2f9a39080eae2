package design

import (
	"math"
	"strings"
	"testing"
)

// seqRand returns values from a fixed sequence, modulo n.
type seqRand struct {
	vals []int
	i    int
}

func (s *seqRand) IntN(n int) int {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v % n
}

func TestSpecifyFormulas(t *testing.T) {
	for c := 1; c <= 50; c++ {
		specs, low, buildTime := Specify(c, "Low")
		_, high, _ := Specify(c, "High")

		if specs.TotalArea != 28*c {
			t.Errorf("c=%d totalArea = %d", c, specs.TotalArea)
		}
		if math.Abs(specs.PowerConsumption-2.2*float64(c)) > 1e-9 {
			t.Errorf("c=%d powerConsumption = %v", c, specs.PowerConsumption)
		}
		if want := int(math.Ceil(1.5 * float64(c))); buildTime != want {
			t.Errorf("c=%d buildTime = %d, want %d", c, buildTime, want)
		}
		if high != 2*low {
			t.Errorf("c=%d high cost %v is not double low cost %v", c, high, low)
		}
		if specs.RadiationShielding != "98.5% effective" {
			t.Errorf("c=%d radiationShielding = %q", c, specs.RadiationShielding)
		}
	}
}

func TestSpecifyScenario(t *testing.T) {
	specs, cost, buildTime := Specify(4, "Low")
	if specs.TotalArea != 112 {
		t.Errorf("totalArea = %d, want 112", specs.TotalArea)
	}
	if specs.PowerConsumption != 8.8 {
		t.Errorf("powerConsumption = %v, want 8.8", specs.PowerConsumption)
	}
	if specs.OxygenProduction != "3.32" {
		t.Errorf("oxygenProduction = %q, want 3.32", specs.OxygenProduction)
	}
	if specs.WaterRecycling != "15.20" {
		t.Errorf("waterRecycling = %q, want 15.20", specs.WaterRecycling)
	}
	if cost != 4.8 {
		t.Errorf("estimatedCost = %v, want 4.8", cost)
	}
	if buildTime != 6 {
		t.Errorf("buildTime = %d, want 6", buildTime)
	}
}

func TestParseCapacity(t *testing.T) {
	tests := map[string]int{
		"4":          4,
		"12":         12,
		" 8 ":        8,
		"4-6 people": 4,
		"10+":        10,
		"":           DefaultCapacity,
		"many":       DefaultCapacity,
		"0":          DefaultCapacity,
		"-3":         DefaultCapacity,
	}
	for in, want := range tests {
		if got := ParseCapacity(in); got != want {
			t.Errorf("ParseCapacity(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSafetyRatingRange(t *testing.T) {
	d := New(nil)
	seen := map[int]bool{}
	for i := 0; i < 5000; i++ {
		r := d.SafetyRating()
		if r < 85 || r > 98 {
			t.Fatalf("safety rating %d out of [85,98]", r)
		}
		seen[r] = true
	}
	if len(seen) < 10 {
		t.Errorf("only %d distinct ratings in 5000 draws", len(seen))
	}
}

func TestSafetyRatingBounds(t *testing.T) {
	if got := New(&seqRand{vals: []int{0}}).SafetyRating(); got != 85 {
		t.Errorf("min rating = %d, want 85", got)
	}
	if got := New(&seqRand{vals: []int{13}}).SafetyRating(); got != 98 {
		t.Errorf("max rating = %d, want 98", got)
	}
}

func TestComposeUnknownStyleFallsBack(t *testing.T) {
	d := New(&seqRand{vals: []int{3}})
	dsg := d.Compose(Request{Style: "Floating Tower", Capacity: "abc", Budget: "High"})
	if dsg.Template.Name != "The Martian Dome" {
		t.Errorf("template = %q, want first template", dsg.Template.Name)
	}
	if dsg.Specifications.TotalArea != 112 {
		t.Errorf("totalArea = %d, want default capacity area 112", dsg.Specifications.TotalArea)
	}
	if dsg.EstimatedCost != 9.6 {
		t.Errorf("estimatedCost = %v, want 9.6", dsg.EstimatedCost)
	}
	if dsg.ID == "" {
		t.Error("design id is empty")
	}
	if dsg.SafetyRating != 88 {
		t.Errorf("safetyRating = %d, want 88", dsg.SafetyRating)
	}
}

func TestPrompt(t *testing.T) {
	d := New(&seqRand{vals: []int{2, 424242}})
	p := d.Prompt(Request{Style: "Lava Tube Home", Capacity: "6", Budget: "High"})

	for _, want := range []string{
		"Style: Lava Tube Home",
		`"Natural cave system converted to living space"`,
		"capacity of 6 and a High budget",
		"Add this twist: with a glowing blue aurora in the sky.",
		"UniqueID:424242",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestPromptUnknownStyle(t *testing.T) {
	d := New(&seqRand{vals: []int{0, 7}})
	p := d.Prompt(Request{Style: "Floating Spire", Capacity: "2", Budget: "Low"})

	if !strings.Contains(p, `Style: Floating Spire, matching the concept of "".`) {
		t.Errorf("unknown style should carry an empty concept:\n%s", p)
	}
	if strings.Contains(p, "Classic geodesic dome with panoramic views") {
		t.Errorf("unknown style borrowed the first template's concept:\n%s", p)
	}
}

func TestResultCarriesEnvironment(t *testing.T) {
	d := New(nil)
	res := d.Result(d.Compose(Request{Capacity: "4"}))
	if res.Environment.Temperature.Average != -63 || res.Environment.Gravity != "38% Earth" {
		t.Errorf("environment = %+v", res.Environment)
	}
	if res.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
