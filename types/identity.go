package types

import (
	"fmt"
	"strings"
)

// VariantKind describes how a test case was instantiated by gtest.
type VariantKind string

const (
	VariantPlain         VariantKind = "plain"
	VariantParameterized VariantKind = "parameterized" // TEST_P instantiation, annotated with GetParam()
	VariantTyped         VariantKind = "typed"         // TYPED_TEST instantiation, annotated with TypeParam
)

// TestIdentity addresses exactly one runnable gtest case.
//
// Suite and Case are stored exactly as the binary lists them, so they already
// carry instantiation prefixes ("Prefix/Suite") and index suffixes ("Case/3").
// Variant holds the annotation value ("2", "int") and is empty for plain tests.
type TestIdentity struct {
	Suite   string      `json:"suite"`
	Case    string      `json:"case"`
	Variant string      `json:"variant,omitempty"`
	Kind    VariantKind `json:"kind"`
}

// QualifiedName returns the name the binary accepts back as a filter to run
// this case and nothing else.
func (id TestIdentity) QualifiedName() string {
	return id.Suite + "." + id.Case
}

// Equal compares identities by (suite, case, variant).
func (id TestIdentity) Equal(other TestIdentity) bool {
	return id.Suite == other.Suite && id.Case == other.Case && id.Variant == other.Variant
}

func (id TestIdentity) String() string {
	if id.Variant == "" {
		return id.QualifiedName()
	}
	return fmt.Sprintf("%s [%s]", id.QualifiedName(), id.Variant)
}

// ParseQualifiedName splits a "Suite.Case" name. gtest suite names never
// contain a '.', so the first one is the separator.
func ParseQualifiedName(name string) (suite, testCase string, err error) {
	suite, testCase, ok := strings.Cut(name, ".")
	if !ok || suite == "" || testCase == "" {
		return "", "", fmt.Errorf("invalid qualified test name %q", name)
	}
	return suite, testCase, nil
}
