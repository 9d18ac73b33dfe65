// Package theme holds the dark themes a document can be converted to.
package theme

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/wudi/pdfdark/cmm"
)

// Theme is a named target background colour.
type Theme struct {
	ID          string
	DisplayName string
	Background  cmm.Color
}

// UnknownThemeError is returned by Lookup for an id no theme has.
type UnknownThemeError struct {
	ID string
}

func (e *UnknownThemeError) Error() string { return fmt.Sprintf("unknown theme %q", e.ID) }

type Registry interface {
	Lookup(id string) (Theme, error)
	List() []Theme
}

var _ Registry = (*Catalog)(nil)

// Default is the id used when a request names no theme.
const Default = "classic"

var builtins = []Theme{
	{ID: "classic", DisplayName: "True Black (Classic Inversion)", Background: cmm.Color8(0, 0, 0)},
	{ID: "claude", DisplayName: "Claude Warm", Background: cmm.Color8(42, 37, 34)},
	{ID: "chatgpt", DisplayName: "ChatGPT Cool", Background: cmm.Color8(52, 53, 65)},
	{ID: "sepia", DisplayName: "Sepia Dark", Background: cmm.Color8(40, 35, 25)},
	{ID: "midnight", DisplayName: "Midnight Blue", Background: cmm.Color8(25, 30, 45)},
	{ID: "forest", DisplayName: "Forest Green", Background: cmm.Color8(25, 35, 30)},
}

// Builtins returns the built-in themes in their display order.
func Builtins() []Theme { return append([]Theme(nil), builtins...) }

// Catalog is the Registry implementation: built-ins plus loaded themes.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Theme
}

// NewRegistry returns a registry holding the built-in themes followed by
// extra. An extra theme with a built-in id replaces it in place.
func NewRegistry(extra ...Theme) (*Catalog, error) {
	r := &Catalog{byID: make(map[string]Theme)}
	for _, t := range builtins {
		r.add(t)
	}
	for _, t := range extra {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// key folds case; a Caser is stateful so each call gets its own.
func key(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// Add registers t, replacing a theme with the same id.
func (r *Catalog) Add(t Theme) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("theme has no id")
	}
	for _, v := range []float64{t.Background.R, t.Background.G, t.Background.B} {
		if v < 0 || v > 1 {
			return fmt.Errorf("theme %q: background component %v outside [0,1]", t.ID, v)
		}
	}
	if t.DisplayName == "" {
		t.DisplayName = t.ID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(t)
	return nil
}

func (r *Catalog) add(t Theme) {
	k := key(t.ID)
	if _, ok := r.byID[k]; !ok {
		r.order = append(r.order, k)
	}
	r.byID[k] = t
}

// Lookup finds a theme by id, ignoring case and surrounding space.
func (r *Catalog) Lookup(id string) (Theme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[key(id)]
	if !ok {
		return Theme{}, &UnknownThemeError{ID: id}
	}
	return t, nil
}

func (r *Catalog) List() []Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Theme, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byID[k])
	}
	return out
}

// RGB8 is a background colour with 0-255 components, the form themes are
// exchanged in.
type RGB8 struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Wire is the JSON form of a theme.
type Wire struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Background RGB8   `json:"background"`
}

// ToWire converts t to its JSON form.
func ToWire(t Theme) Wire {
	r, g, b := t.Background.RGB8()
	return Wire{ID: t.ID, Name: t.DisplayName, Background: RGB8{int(r), int(g), int(b)}}
}

func (w Wire) theme() (Theme, error) {
	for _, v := range []int{w.Background.R, w.Background.G, w.Background.B} {
		if v < 0 || v > 255 {
			return Theme{}, fmt.Errorf("theme %q: background component %d outside 0-255", w.ID, v)
		}
	}
	return Theme{
		ID:          w.ID,
		DisplayName: w.Name,
		Background:  cmm.Color8(uint8(w.Background.R), uint8(w.Background.G), uint8(w.Background.B)),
	}, nil
}

// Parse reads a theme file: {"themes": [{"id", "name", "background": {"r","g","b"}}]}.
func Parse(r io.Reader) ([]Theme, error) {
	var file struct {
		Themes []Wire `json:"themes"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse themes: %w", err)
	}
	out := make([]Theme, 0, len(file.Themes))
	for _, w := range file.Themes {
		t, err := w.theme()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadFile returns a registry of the built-ins plus the themes in path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	extra, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewRegistry(extra...)
}
