package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*", "Suite.Case", true},
		{"Suite.Case", "Suite.Case", true},
		{"Suite.Case", "Suite.Case2", false},
		{"Suite.*", "Suite.Case", true},
		{"Suite.*", "Other.Case", false},
		{"*.Case", "Suite.Case", true},
		{"S?ite.Case", "Suite.Case", true},
		{"S?ite.Case", "Site.Case", false},
		{"*/ParameterizedTest.IsEven/*", "EvenNumbers/ParameterizedTest.IsEven/1", true},
		{"*a*b*", "xaxxbx", true},
		{"*a*b", "xaxxbx", false},
		{"", "", true},
		{"", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.name))
		})
	}
}

func TestParseFilter(t *testing.T) {
	f := ParseFilter("Basic*:Typed*-*.Flaky")
	assert.Equal(t, []string{"Basic*", "Typed*"}, f.Positive)
	assert.Equal(t, []string{"*.Flaky"}, f.Negative)
	assert.Equal(t, "Basic*:Typed*-*.Flaky", f.String())

	assert.True(t, f.Match("BasicTests.Addition"))
	assert.False(t, f.Match("BasicTests.Flaky"))
	assert.False(t, f.Match("Other.Addition"))

	negOnly := ParseFilter("-*.Flaky")
	assert.Empty(t, negOnly.Positive)
	assert.True(t, negOnly.Match("Anything.Else"))
	assert.False(t, negOnly.Match("BasicTests.Flaky"))
}

func testCatalog(t *testing.T) *types.TestCatalog {
	t.Helper()
	cat, err := types.NewTestCatalog([]types.TestSuite{
		{Name: "BasicTests", Cases: []types.TestIdentity{
			{Suite: "BasicTests", Case: "Addition"},
			{Suite: "BasicTests", Case: "Flaky"},
		}},
		{Name: "Slow", Cases: []types.TestIdentity{
			{Suite: "Slow", Case: "Sleep"},
		}},
	})
	require.NoError(t, err)
	return cat
}

func TestResolve(t *testing.T) {
	cat := testCatalog(t)

	all, err := Resolve(cat)
	require.NoError(t, err)
	assert.Equal(t, cat.Identities(), all)

	ids, err := Resolve(cat, ParseFilter("*"), ParseFilter("-Slow.*"), ParseFilter("*.Flaky:Slow.*"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "BasicTests.Flaky", ids[0].QualifiedName())

	_, err = Resolve(cat, ParseFilter("Nothing.*"))
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "select.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("include:\n  - BasicTests.*\nexclude:\n  - '*.Flaky'\n"), 0o644))
	tomlPath := filepath.Join(dir, "select.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("include = [\"BasicTests.*\"]\nexclude = [\"*.Flaky\"]\n"), 0o644))

	for _, path := range []string{yamlPath, tomlPath} {
		f, err := LoadFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, []string{"BasicTests.*"}, f.Include)
		assert.Equal(t, []string{"*.Flaky"}, f.Exclude)

		ids, err := Resolve(testCatalog(t), f.Filter())
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, "BasicTests.Addition", ids[0].QualifiedName())
	}

	txtPath := filepath.Join(dir, "select.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))
	_, err := LoadFile(txtPath)
	assert.ErrorContains(t, err, "unsupported")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
