package deck

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDeck   = errors.New("unknown deck type")
	ErrUnknownFlavor = errors.New("unknown flavor")
)

type Card struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// specialCards are appended to every deck regardless of flavor.
var specialCards = []Card{
	{Value: "?", Label: "?", Description: "Not enough information to estimate — story needs refinement"},
	{Value: "coffee", Label: "☕", Description: "Need a break — estimation is mentally taxing"},
	{Value: "infinity", Label: "∞", Description: "Too large to estimate — must be split into smaller stories"},
}

type cardValue struct {
	value string
	label string
}

var deckValues = map[string][]cardValue{
	"fibonacci": {
		{"0", "0"},
		{"0.5", "½"},
		{"1", "1"},
		{"2", "2"},
		{"3", "3"},
		{"5", "5"},
		{"8", "8"},
		{"13", "13"},
		{"20", "20"},
		{"40", "40"},
		{"100", "100"},
	},
	"tshirt": {
		{"xs", "XS"},
		{"s", "S"},
		{"m", "M"},
		{"l", "L"},
		{"xl", "XL"},
		{"xxl", "XXL"},
	},
	"powers2": {
		{"1", "1"},
		{"2", "2"},
		{"4", "4"},
		{"8", "8"},
		{"16", "16"},
		{"32", "32"},
		{"64", "64"},
	},
}

// descriptions are positionally matched to the value list of their deck.
var descriptions = map[string]map[string][]string{
	"fibonacci": {
		"technical": {
			"Already done or no effort needed",
			"Trivial — a few minutes, no risk",
			"Very small, well-understood task (baseline reference)",
			"Small task, slightly more involved than a 1",
			"Small-to-medium, straightforward but needs some thought",
			"Medium effort, moderate complexity",
			"Large — significant complexity, consider splitting",
			"Very large — high complexity and uncertainty, should be split",
			"Extremely large — too big for a single sprint",
			"Epic-level — must be decomposed",
			"Massive — a project unto itself, must be decomposed",
		},
		"idioms": {
			"Done deal — it's already there, nothing to do",
			"Falling off a log — so easy you could do it in your sleep",
			"Low-hanging fruit — practically done for you",
			"Piece of cake — still pretty easy, grab a fork",
			"Not rocket science — needs some thought, but no PhD required",
			"Middle of the road — decent chunk of work, no surprises expected",
			"An arm and a leg — getting too big for one person to carry alone",
			"Just squeaking by — one more point and this must be broken down",
			"Eggs in many baskets — seriously, start breaking this down",
			"Down the rabbit hole — you'll need a map and a flashlight",
			"Here be monsters — way too big, run away and decompose",
		},
		"animals": {
			"No animal needed, nothing to do",
			"Ant — tiny, carry it without thinking",
			"Mouse — small, quick, fits in your hand",
			"Rabbit — small but hops around a bit",
			"Cat — independent, needs a little attention",
			"Dog — loyal effort, needs a real walk",
			"Wolf — pack-level work, getting serious",
			"Bear — big and powerful, respect it",
			"Hippo — deceptively dangerous, don't underestimate",
			"Elephant — massive, you'll need the whole herd",
			"Whale — ocean-sized, decompose or drown",
		},
		"software": {
			"Noop — no operation, it's a no-op",
			"Config change — flip a flag, change a constant",
			"One-liner fix — a single well-understood code change",
			"Small bug fix — track it down, patch it, test it",
			"Simple feature — a form, a button, a new endpoint",
			"Feature with tests — real feature work with edge cases",
			"Multi-component — touches several files/modules, needs coordination",
			"Subsystem — new subsystem or major rework of an existing one",
			"Architecture change — structural change across the codebase",
			"Platform migration — moving to a new framework/platform",
			"Full rewrite — start from scratch, are you sure?",
		},
	},
	"tshirt": {
		"technical": {
			"Trivial effort",
			"Simple, well-understood",
			"Moderate effort and complexity",
			"Significant effort, may need splitting",
			"High complexity, should be split",
			"Must be decomposed into smaller items",
		},
		"idioms": {
			"Falling off a log",
			"Piece of cake",
			"Middle of the road",
			"An arm and a leg",
			"Down the rabbit hole",
			"Here be monsters",
		},
		"animals": {
			"Ant — tiny",
			"Mouse — small and quick",
			"Dog — needs a real walk",
			"Bear — big and powerful",
			"Elephant — massive",
			"Whale — ocean-sized",
		},
		"software": {
			"Config change",
			"One-liner fix",
			"Simple feature",
			"Multi-component change",
			"Subsystem rework",
			"Architecture change",
		},
	},
	"powers2": {
		"technical": {
			"Baseline — simplest meaningful task",
			"Twice the baseline effort",
			"Half a day's focused work",
			"About a day — moderate complexity",
			"Multi-day — significant complexity",
			"Large — consider splitting",
			"Very large — must be decomposed",
		},
		"idioms": {
			"Low-hanging fruit",
			"Piece of cake",
			"Not rocket science",
			"Middle of the road",
			"An arm and a leg",
			"Down the rabbit hole",
			"Here be monsters",
		},
		"animals": {
			"Mouse — small and quick",
			"Rabbit — hops around a bit",
			"Dog — needs a real walk",
			"Wolf — pack-level work",
			"Bear — big and powerful",
			"Elephant — massive",
			"Whale — ocean-sized",
		},
		"software": {
			"One-liner fix",
			"Small bug fix",
			"Simple feature",
			"Feature with tests",
			"Multi-component change",
			"Subsystem rework",
			"Architecture change",
		},
	},
}

var (
	deckTypes = []string{"fibonacci", "tshirt", "powers2"}
	flavors   = []string{"technical", "idioms", "animals", "software"}
)

// Types returns the available deck types in a stable order.
func Types() []string {
	return deckTypes
}

// Flavors returns the available description flavors in a stable order.
func Flavors() []string {
	return flavors
}

// Cards resolves a deck type and flavor combination to its card list,
// including the three special cards.
func Cards(deckType, flavor string) ([]Card, error) {
	values, ok := deckValues[deckType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeck, deckType)
	}

	descs, ok := descriptions[deckType][flavor]
	if !ok {
		return nil, fmt.Errorf("%w %q for deck %q", ErrUnknownFlavor, flavor, deckType)
	}

	cards := make([]Card, 0, len(values)+len(specialCards))
	for i, v := range values {
		cards = append(cards, Card{
			Value:       v.value,
			Label:       v.label,
			Description: descs[i],
		})
	}

	cards = append(cards, specialCards...)
	return cards, nil
}

// All returns the fully resolved catalog for every deck type and flavor.
func All() map[string]map[string][]Card {
	result := make(map[string]map[string][]Card, len(deckTypes))
	for _, dt := range deckTypes {
		result[dt] = make(map[string][]Card, len(flavors))
		for _, f := range flavors {
			cards, err := Cards(dt, f)
			if err != nil {
				// tables are static, a miss here is a programming error
				panic(err)
			}
			result[dt][f] = cards
		}
	}

	return result
}
