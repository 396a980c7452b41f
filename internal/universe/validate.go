package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseError signals malformed JSON syntax, as opposed to a structurally
// sound document that fails validation.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("universe document is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError describes one problem found in an otherwise parseable
// document. Path uses the JSON shape of the document, e.g.
// "galaxies[1].solarSystems[0].mainStar.name".
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ParseAndValidate decodes raw JSON into a Universe and collects every
// structural problem it can find. It never fails on a document of the
// expected shape family: the caller always gets a best-effort Universe plus
// the full error list, and must check that the list is empty before treating
// the document as safe to persist or commit. Only malformed JSON syntax is
// returned as an error (a *ParseError).
func ParseAndValidate(raw []byte) (*Universe, []ValidationError, error) {
	var u Universe
	if err := json.Unmarshal(raw, &u); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Wrong type for a known field. Unmarshal fills everything it
			// could before the mismatch, so keep the partial tree and report
			// the field alongside the structural errors.
			errs := []ValidationError{{
				Path:    typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}}
			errs = append(errs, Validate(&u)...)
			return &u, errs, nil
		}
		return nil, nil, &ParseError{Err: err}
	}
	return &u, Validate(&u), nil
}

// Validate checks the whole tree and returns every violation at once, so an
// editor can fix a document in one pass instead of replaying save attempts.
func Validate(u *Universe) []ValidationError {
	var errs []ValidationError
	seenGalaxies := map[string]bool{}
	for i, g := range u.Galaxies {
		path := fmt.Sprintf("galaxies[%d]", i)
		errs = append(errs, requireID(path, g.ID, seenGalaxies, "galaxy")...)
		errs = append(errs, requireNameTheme(path, g.Name, g.Theme)...)
		if strings.TrimSpace(g.ParticleColor) == "" {
			errs = append(errs, ValidationError{Path: path + ".particleColor", Message: "particle color is required"})
		} else if !hexColorPattern.MatchString(g.ParticleColor) {
			errs = append(errs, ValidationError{Path: path + ".particleColor", Message: fmt.Sprintf("%q is not a hex color", g.ParticleColor)})
		}

		seenStars := map[string]bool{}
		for j, star := range g.Stars {
			starPath := fmt.Sprintf("%s.stars[%d]", path, j)
			errs = append(errs, requireID(starPath, star.ID, seenStars, "star")...)
			errs = append(errs, requireNameTheme(starPath, star.Name, star.Theme)...)
		}

		seenSystems := map[string]bool{}
		for j, sys := range g.SolarSystems {
			sysPath := fmt.Sprintf("%s.solarSystems[%d]", path, j)
			errs = append(errs, requireID(sysPath, sys.ID, seenSystems, "solar system")...)
			errs = append(errs, requireNameTheme(sysPath, sys.Name, sys.Theme)...)
			errs = append(errs, validateMainStar(sysPath+".mainStar", sys.MainStar)...)

			seenPlanets := map[string]bool{}
			for k, p := range sys.Planets {
				planetPath := fmt.Sprintf("%s.planets[%d]", sysPath, k)
				errs = append(errs, requireID(planetPath, p.ID, seenPlanets, "planet")...)
				errs = append(errs, requireNameTheme(planetPath, p.Name, p.Theme)...)

				seenMoons := map[string]bool{}
				for m, moon := range p.Moons {
					moonPath := fmt.Sprintf("%s.moons[%d]", planetPath, m)
					errs = append(errs, requireID(moonPath, moon.ID, seenMoons, "moon")...)
					if strings.TrimSpace(moon.Name) == "" {
						errs = append(errs, ValidationError{Path: moonPath + ".name", Message: "name is required"})
					}
				}
			}
		}
	}
	return errs
}

func validateMainStar(path string, star Star) []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(star.ID) == "" {
		errs = append(errs, ValidationError{Path: path + ".id", Message: "id is required"})
	}
	errs = append(errs, requireNameTheme(path, star.Name, star.Theme)...)
	return errs
}

func requireID(path, id string, seen map[string]bool, kind string) []ValidationError {
	if strings.TrimSpace(id) == "" {
		return []ValidationError{{Path: path + ".id", Message: "id is required"}}
	}
	if seen[id] {
		return []ValidationError{{Path: path + ".id", Message: fmt.Sprintf("duplicate %s id %q", kind, id)}}
	}
	seen[id] = true
	return nil
}

func requireNameTheme(path, name, theme string) []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(name) == "" {
		errs = append(errs, ValidationError{Path: path + ".name", Message: "name is required"})
	}
	if strings.TrimSpace(theme) == "" {
		errs = append(errs, ValidationError{Path: path + ".theme", Message: "theme is required"})
	} else if !KnownTheme(theme) {
		errs = append(errs, ValidationError{Path: path + ".theme", Message: fmt.Sprintf("unknown theme %q", theme)})
	}
	return errs
}

// Serialize renders the canonical on-disk and on-remote representation:
// pretty-printed two-space indentation with a trailing newline. The byte
// layout matters: it is exactly what gets hashed and committed, so a
// formatting change is a content change.
func Serialize(u *Universe) ([]byte, error) {
	payload, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal universe: %w", err)
	}
	return append(payload, '\n'), nil
}
