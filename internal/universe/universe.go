// Package universe defines the content tree served by The Horizon and the
// parsing, validation, and canonical serialization used by the publishing
// pipeline.
package universe

// Universe is the root aggregate. Galaxies own every other entity top-down;
// there are no shared references between branches of the tree.
type Universe struct {
	Galaxies []Galaxy `json:"galaxies"`
}

type Galaxy struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Theme         string        `json:"theme"`
	ParticleColor string        `json:"particleColor"`
	Stars         []Star        `json:"stars"`
	SolarSystems  []SolarSystem `json:"solarSystems"`
}

type SolarSystem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Theme    string   `json:"theme"`
	MainStar Star     `json:"mainStar"`
	Planets  []Planet `json:"planets"`
}

type Star struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Theme string `json:"theme"`
}

type Planet struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Theme   string `json:"theme"`
	Summary string `json:"summary"`
	Content string `json:"content"`
	Moons   []Moon `json:"moons"`
}

// Moon is the leaf entity. It carries no theme of its own; moons inherit the
// look of their planet in the viewer.
type Moon struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Themes accepted by the viewer. Anything else is a validation error so a
// typo cannot silently fall back to the default look in production.
var knownThemes = map[string]bool{
	"azure":   true,
	"violet":  true,
	"emerald": true,
	"amber":   true,
	"crimson": true,
	"gold":    true,
	"slate":   true,
	"rose":    true,
}

// KnownTheme reports whether the viewer understands the given theme tag.
func KnownTheme(theme string) bool {
	return knownThemes[theme]
}
