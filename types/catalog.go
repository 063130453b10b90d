package types

import (
	"errors"
	"fmt"
	"sort"
)

// TestSuite is one suite header from a gtest listing together with its cases.
type TestSuite struct {
	Name      string         `json:"name"`
	TypeParam string         `json:"type_param,omitempty"`
	Cases     []TestIdentity `json:"cases"`
}

// TestCatalog is the ordered set of test identities discovered from a binary.
// It is never modified after NewTestCatalog returns.
type TestCatalog struct {
	suites     []TestSuite
	identities []TestIdentity
	positions  map[string]int
}

// NewTestCatalog builds a catalog from suites in discovery order.
func NewTestCatalog(suites []TestSuite) (*TestCatalog, error) {
	c := &TestCatalog{
		suites:    make([]TestSuite, 0, len(suites)),
		positions: make(map[string]int),
	}
	for _, s := range suites {
		if s.Name == "" {
			return nil, errors.New("suite with empty name")
		}
		if len(s.Cases) == 0 {
			return nil, fmt.Errorf("suite %q has no test cases", s.Name)
		}
		cases := make([]TestIdentity, len(s.Cases))
		copy(cases, s.Cases)
		for _, id := range cases {
			name := id.QualifiedName()
			if _, dup := c.positions[name]; dup {
				return nil, fmt.Errorf("duplicate test %q", name)
			}
			c.positions[name] = len(c.identities)
			c.identities = append(c.identities, id)
		}
		c.suites = append(c.suites, TestSuite{Name: s.Name, TypeParam: s.TypeParam, Cases: cases})
	}
	return c, nil
}

// Len returns the number of test identities in the catalog.
func (c *TestCatalog) Len() int {
	return len(c.identities)
}

// Suites returns a copy of the suites in discovery order.
func (c *TestCatalog) Suites() []TestSuite {
	out := make([]TestSuite, len(c.suites))
	for i, s := range c.suites {
		out[i] = s
		out[i].Cases = append([]TestIdentity(nil), s.Cases...)
	}
	return out
}

// Identities returns a copy of every identity in discovery order.
func (c *TestCatalog) Identities() []TestIdentity {
	return append([]TestIdentity(nil), c.identities...)
}

// Lookup finds an identity by its qualified name.
func (c *TestCatalog) Lookup(qualifiedName string) (TestIdentity, bool) {
	pos, ok := c.positions[qualifiedName]
	if !ok {
		return TestIdentity{}, false
	}
	return c.identities[pos], true
}

// Position returns the discovery index of id, or -1 when the catalog does not
// contain it.
func (c *TestCatalog) Position(id TestIdentity) int {
	pos, ok := c.positions[id.QualifiedName()]
	if !ok || !c.identities[pos].Equal(id) {
		return -1
	}
	return pos
}

// Contains reports whether id is part of the catalog.
func (c *TestCatalog) Contains(id TestIdentity) bool {
	return c.Position(id) >= 0
}

// Order returns ids deduplicated, restricted to the catalog and sorted by
// discovery order.
func (c *TestCatalog) Order(ids []TestIdentity) []TestIdentity {
	seen := make(map[int]struct{}, len(ids))
	positions := make([]int, 0, len(ids))
	for _, id := range ids {
		pos := c.Position(id)
		if pos < 0 {
			continue
		}
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	out := make([]TestIdentity, len(positions))
	for i, pos := range positions {
		out[i] = c.identities[pos]
	}
	return out
}
