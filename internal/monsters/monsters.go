// Package monsters turns the raw sprite catalogue into enemy definitions the
// game engine can spawn: hit points, speed, size, a movement pattern and a
// challenge rating.
package monsters

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Pattern string

const (
	Direct       Pattern = "DIRECT"
	SlowApproach Pattern = "SLOW_APPROACH"
	Zigzag       Pattern = "ZIGZAG"
	Hopper       Pattern = "HOPPER"
	Orbiter      Pattern = "ORBITER"
	Charger      Pattern = "CHARGER"
)

const colorDigits = "456789ABCDEF"

// Humanoid sprites that ship with the art pack but are not enemies.
var skipped = map[string]bool{"Mage": true, "Acolyte": true, "Commoner": true}

type Source struct {
	Path string `json:"path"`
}

type Params = *orderedmap.OrderedMap[string, any]

type Monster struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	HP          int     `json:"hp"`
	Speed       float64 `json:"speed"`
	Radius      int     `json:"radius"`
	CR          int     `json:"cr"`
	MovePattern Pattern `json:"move_pattern"`
	MoveParams  Params  `json:"move_params"`
	Color       string  `json:"color"`
}

// Catalogue keeps monsters in the order they appeared in the source file.
type Catalogue = *orderedmap.OrderedMap[string, Monster]

// Parse reads a {name: {path, ...}} document, preserving key order.
func Parse(data []byte) (*orderedmap.OrderedMap[string, Source], error) {
	src := orderedmap.New[string, Source]()
	if err := json.Unmarshal(data, src); err != nil {
		return nil, fmt.Errorf("parse monsters: %w", err)
	}
	return src, nil
}

// Enrich derives a Monster for every non-skipped entry. Output is a pure
// function of the input names and paths.
func Enrich(src *orderedmap.OrderedMap[string, Source]) Catalogue {
	out := orderedmap.New[string, Monster]()
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if skipped[pair.Key] {
			continue
		}
		out.Set(pair.Key, Derive(pair.Key, pair.Value.Path))
	}
	return out
}

func Derive(name, path string) Monster {
	rng := seeded(name)

	hp := 30 + rng.IntN(51)
	speed := round(uniform(rng, 0.8, 2.0), 2)
	radius := 12 + rng.IntN(7)

	pattern := Direct
	params := orderedmap.New[string, any]()

	switch {
	case nameHas(name, "Dragon", "Giant", "Golem"):
		pattern = SlowApproach
		hp += 150
		radius += 10
		speed *= 0.6
	case nameHas(name, "Bat", "Eagle", "Flying", "Vulture"):
		pattern = Zigzag
		speed *= 1.5
		params.Set("zigzagAmplitude", round(uniform(rng, 2, 5), 2))
		params.Set("zigzagFrequency", round(uniform(rng, 0.005, 0.015), 4))
	case nameHas(name, "Spider", "Frog", "Toad"):
		pattern = Hopper
		params.Set("hopCooldown", 1000+rng.IntN(1001))
		params.Set("hopDuration", 300)
		params.Set("hopSpeedMult", 4)
	case nameHas(name, "Archer", "Mage", "Priest", "Slaad"):
		pattern = Orbiter
		params.Set("orbitRadius", 250+rng.IntN(151))
	case nameHas(name, "Snake", "Worm"):
		pattern = Zigzag
		speed *= 1.2
		params.Set("zigzagAmplitude", 1.5)
		params.Set("zigzagFrequency", 0.01)
	case nameHas(name, "Boar", "Minotaur", "Rhino", "Triceratops"):
		pattern = Charger
		speed *= 0.5 // walks slowly between charges
		setCharger(params, 300, 4, 3000, 600)
	default:
		roll := rng.Float64()
		switch {
		case roll < 0.2:
			pattern = Zigzag
			params.Set("zigzagAmplitude", 3)
			params.Set("zigzagFrequency", 0.01)
		case roll < 0.35:
			pattern = Orbiter
			params.Set("orbitRadius", 300)
		case roll < 0.55:
			pattern = Hopper
			params.Set("hopCooldown", 1500)
			params.Set("hopDuration", 400)
			params.Set("hopSpeedMult", 3.5)
		case roll < 0.7:
			pattern = Charger
			setCharger(params, 250, 3, 2500, 500)
		}
	}

	return Monster{
		Name:        name,
		Path:        path,
		HP:          hp,
		Speed:       speed,
		Radius:      radius,
		CR:          ChallengeRating(hp, speed),
		MovePattern: pattern,
		MoveParams:  params,
		Color:       color(rng),
	}
}

// ChallengeRating scales with hp and the square of speed, never below 1.
func ChallengeRating(hp int, speed float64) int {
	cr := int(math.RoundToEven(float64(hp) / 10 * speed * speed))
	return max(1, cr)
}

func setCharger(p Params, distance int, mult float64, cooldown, duration int) {
	p.Set("chargeDistance", distance)
	p.Set("chargeSpeedMult", mult)
	p.Set("chargeCooldown", cooldown)
	p.Set("chargeDuration", duration)
}

func seeded(name string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum>>1|1))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func nameHas(name string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

func color(rng *rand.Rand) string {
	var b strings.Builder
	b.WriteByte('#')
	for range 6 {
		b.WriteByte(colorDigits[rng.IntN(len(colorDigits))])
	}
	return b.String()
}
