package reporting

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-deflake/types"
	"github.com/ethereum-optimism/infra/op-deflake/ui"
)

// CatalogTree renders the catalog as a suite/case tree followed by totals.
func CatalogTree(catalog *types.TestCatalog) string {
	var b strings.Builder
	suites := catalog.Suites()
	for _, suite := range suites {
		noun := "tests"
		if len(suite.Cases) == 1 {
			noun = "test"
		}
		fmt.Fprintf(&b, "%s (%d %s)", suite.Name, len(suite.Cases), noun)
		if suite.TypeParam != "" {
			fmt.Fprintf(&b, "  # TypeParam = %s", suite.TypeParam)
		}
		b.WriteString("\n")
		for i, c := range suite.Cases {
			b.WriteString(ui.BuildTreePrefix(1, i == len(suite.Cases)-1, nil))
			b.WriteString(c.Case)
			if c.Kind == types.VariantParameterized {
				fmt.Fprintf(&b, "  # GetParam() = %s", c.Variant)
			}
			b.WriteString("\n")
		}
	}
	if len(suites) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Test Suites: %d\n", len(suites))
	fmt.Fprintf(&b, "Total Tests: %d\n", catalog.Len())
	return b.String()
}
