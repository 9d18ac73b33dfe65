package recovery

import (
	"fmt"
	"sort"
	"sync"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// Warning is one recorded non-fatal condition. Identical conditions at the
// same location are folded into one warning with Count > 1.
type Warning struct {
	Kind     Kind
	Location Location
	Err      error
	Count    int
}

func (w Warning) String() string {
	s := fmt.Sprintf("%s at%s: %v", w.Kind, prefixSpace(w.Location.String()), w.Err)
	if w.Count > 1 {
		s += fmt.Sprintf(" (x%d)", w.Count)
	}
	return s
}

func prefixSpace(s string) string {
	if s == "" || s[0] == ' ' {
		return s
	}
	return " " + s
}

type warningKey struct {
	kind Kind
	loc  Location
	msg  string
}

// Collector accumulates warnings from concurrent workers. Used as a
// Strategy it records the error as KindSyntax and asks the caller to fix
// up and continue.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
	index    map[warningKey]int
}

func NewCollector() *Collector {
	return &Collector{index: make(map[warningKey]int)}
}

func (c *Collector) OnError(ctx Context, err error, location Location) Action {
	c.Add(KindSyntax, location, err)
	return ActionFix
}

// Add records a warning of the given kind.
func (c *Collector) Add(kind Kind, loc Location, err error) {
	if err == nil {
		return
	}
	key := warningKey{kind: kind, loc: loc, msg: err.Error()}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		c.index = make(map[warningKey]int)
	}
	if i, ok := c.index[key]; ok {
		c.warnings[i].Count++
		return
	}
	c.index[key] = len(c.warnings)
	c.warnings = append(c.warnings, Warning{Kind: kind, Location: loc, Err: err, Count: 1})
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}

// Warnings returns a sorted copy of the recorded warnings. The order does
// not depend on the order in which workers reported them.
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	out := append([]Warning(nil), c.warnings...)
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Location.Page != b.Location.Page {
			return a.Location.Page < b.Location.Page
		}
		if a.Location.ObjectNum != b.Location.ObjectNum {
			return a.Location.ObjectNum < b.Location.ObjectNum
		}
		if a.Location.ObjectGen != b.Location.ObjectGen {
			return a.Location.ObjectGen < b.Location.ObjectGen
		}
		if a.Location.ByteOffset != b.Location.ByteOffset {
			return a.Location.ByteOffset < b.Location.ByteOffset
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Location.Component != b.Location.Component {
			return a.Location.Component < b.Location.Component
		}
		return a.Err.Error() < b.Err.Error()
	})
	return out
}
