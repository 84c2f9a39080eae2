// Package design turns a habitat request into specification numbers and an
// image prompt.
package design

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bonosa/MarsLife/internal/catalog"
	"github.com/google/uuid"
)

const (
	DefaultCapacity    = 4
	RadiationShielding = "98.5% effective"
	minSafetyRating    = 85
	maxSafetyRating    = 98
	uniqueTagRange     = 1000000
)

// Request is one design submission. Capacity is kept as the raw string the
// client sent ("4", "4-6 people", ...).
type Request struct {
	Style    string `json:"style"`
	Capacity string `json:"capacity"`
	Budget   string `json:"budget"`
}

type Specifications struct {
	TotalArea          int     `json:"totalArea"`
	PowerConsumption   float64 `json:"powerConsumption"`
	OxygenProduction   string  `json:"oxygenProduction"`
	WaterRecycling     string  `json:"waterRecycling"`
	RadiationShielding string  `json:"radiationShielding"`
}

type Design struct {
	ID             string           `json:"id"`
	Template       catalog.Template `json:"template"`
	Specifications Specifications   `json:"specifications"`
	EstimatedCost  float64          `json:"estimatedCost"`
	BuildTime      int              `json:"buildTime"`
	SafetyRating   int              `json:"safetyRating"`
	ImageURL       string           `json:"imageUrl,omitempty"`
}

type Temperature struct {
	Average int `json:"average"`
}

type Environment struct {
	Temperature Temperature `json:"temperature"`
	Gravity     string      `json:"gravity"`
	Radiation   string      `json:"radiation"`
}

// Mars is the static environment block returned with every design.
var Mars = Environment{
	Temperature: Temperature{Average: -63},
	Gravity:     "38% Earth",
	Radiation:   "High",
}

// Result is the payload of a design_result message.
type Result struct {
	Design      Design      `json:"design"`
	Environment Environment `json:"environment"`
	Timestamp   time.Time   `json:"timestamp"`
}

var twists = []string{
	"at sunset with dramatic shadows",
	"during a Martian dust storm, swirling red clouds",
	"with a glowing blue aurora in the sky",
	"with a futuristic Mars rover parked outside",
	"with a group of astronauts in colorful suits",
	"in a cyberpunk art style, neon accents",
	"with bioluminescent plants around the habitat",
	"with a transparent dome showing lush green gardens inside",
	"with a rocket launching in the background",
	"with a giant Mars mountain in the distance",
	"with a surreal, dreamlike atmosphere",
	"with dramatic cinematic lighting, lens flare",
	"in the style of a 1980s sci-fi movie poster",
	"with a massive solar farm nearby",
	"with a Martian pet (alien creature) outside",
	"with a holographic sign above the entrance",
	"with a meteor shower in the sky",
	"with a red-blue color palette, high contrast",
	"with a whimsical, cartoonish look",
	"with a panoramic view of Valles Marineris canyon",
}

// Twists returns the stylistic modifiers a prompt may pick from.
func Twists() []string {
	out := make([]string, len(twists))
	copy(out, twists)
	return out
}

// Rand is the randomness a Designer needs. *rand.Rand satisfies it, but is
// not safe for concurrent use on its own.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type Designer struct {
	rng   Rand
	newID func() string
	now   func() time.Time
}

// New returns a Designer. A nil rng uses the process-wide source.
func New(rng Rand) *Designer {
	if rng == nil {
		rng = globalRand{}
	}
	return &Designer{rng: rng, newID: uuid.NewString, now: time.Now}
}

// ParseCapacity reads the leading integer of s. Anything unparseable or not
// positive yields DefaultCapacity.
func ParseCapacity(s string) int {
	s = strings.TrimSpace(s)
	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		digits++
		if n > 1_000_000 {
			break
		}
	}
	if digits == 0 || n <= 0 {
		return DefaultCapacity
	}
	return n
}

// Specify computes the deterministic part of a design.
func Specify(capacity int, budget string) (Specifications, float64, int) {
	c := capacity
	multiplier := 1
	if budget == "High" {
		multiplier = 2
	}
	specs := Specifications{
		TotalArea:          c * 28,
		PowerConsumption:   float64(c*22) / 10,
		OxygenProduction:   fmt.Sprintf("%.2f", float64(c)*0.83),
		WaterRecycling:     fmt.Sprintf("%.2f", float64(c)*3.8),
		RadiationShielding: RadiationShielding,
	}
	estimatedCost := float64(c*12*multiplier) / 10
	buildTime := (3*c + 1) / 2 // ceil(c * 1.5)
	return specs, estimatedCost, buildTime
}

// SafetyRating is uniform in [85, 98].
func (d *Designer) SafetyRating() int {
	return minSafetyRating + d.rng.IntN(maxSafetyRating-minSafetyRating+1)
}

// Compose builds the full design for req, without the image.
func (d *Designer) Compose(req Request) Design {
	tpl, _ := catalog.Lookup(req.Style)
	specs, cost, buildTime := Specify(ParseCapacity(req.Capacity), req.Budget)
	return Design{
		ID:             d.newID(),
		Template:       tpl,
		Specifications: specs,
		EstimatedCost:  cost,
		BuildTime:      buildTime,
		SafetyRating:   d.SafetyRating(),
	}
}

// Result wraps a finished design with the environment block and timestamp.
func (d *Designer) Result(dsg Design) Result {
	return Result{Design: dsg, Environment: Mars, Timestamp: d.now().UTC()}
}

// Prompt composes the image prompt: template concept, capacity and budget,
// one random twist, and a uniqueness tag so providers do not serve a cached
// image.
func (d *Designer) Prompt(req Request) string {
	// An unknown style keeps its name but carries no concept description.
	var concept string
	if tpl, ok := catalog.Lookup(req.Style); ok {
		concept = tpl.Description
	}
	twist := twists[d.rng.IntN(len(twists))]
	tag := d.rng.IntN(uniqueTagRange)

	var b strings.Builder
	b.WriteString("Create a photorealistic, cinematic concept art of a Mars habitat.\n")
	fmt.Fprintf(&b, "Style: %s, matching the concept of %q.\n", req.Style, concept)
	fmt.Fprintf(&b, "It is designed for a capacity of %s and a %s budget.\n", req.Capacity, req.Budget)
	b.WriteString("The scene must be set on the Martian landscape: a rocky, desolate, red-orange desert under a thin, dusty pink sky.\n")
	b.WriteString("The visual should be awe-inspiring, rugged, and futuristic.\n")
	b.WriteString("If the style is \"Underground Bunker\" or \"Lava Tube Home\", show a cutaway view revealing the subterranean living quarters, with only an entrance visible on the surface.\n")
	fmt.Fprintf(&b, "Add this twist: %s.\n", twist)
	fmt.Fprintf(&b, "UniqueID:%d", tag)
	return b.String()
}
