package catalog

import (
	"bufio"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	annotationSeparator = "  # "
	typeParamPrefix     = "TypeParam = "
	getParamPrefix      = "GetParam() = "
	preamblePrefix      = "Running main() from "
)

// Listing grammar, one line at a time:
//
//	preamble  = "Running main() from " any          (only before the first suite)
//	suite     = name "." [ "  # TypeParam = " value ]
//	case      = indent name [ "  # GetParam() = " value ]
//
// Blank lines are ignored anywhere. Every suite needs at least one case.
type parseState int

const (
	stateStart parseState = iota // nothing seen yet
	stateSuite                   // suite header seen, no cases yet
	stateCases                   // at least one case under the current suite
)

type parser struct {
	state      parseState
	started    bool
	suites     []types.TestSuite
	current    *types.TestSuite
	headerLine int
	headerText string
}

// Parse reads `--gtest_list_tests` output into suites in discovery order.
func Parse(r io.Reader) ([]types.TestSuite, error) {
	p := &parser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.line(lineNo, strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := p.closeSuite(); err != nil {
		return nil, err
	}
	return p.suites, nil
}

func (p *parser) line(n int, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if text[0] == ' ' || text[0] == '\t' {
		return p.caseLine(n, text)
	}
	if !p.started && strings.HasPrefix(text, preamblePrefix) {
		return nil
	}
	return p.suiteLine(n, text)
}

func (p *parser) suiteLine(n int, text string) error {
	if err := p.closeSuite(); err != nil {
		return err
	}
	header, annotation, hasAnnotation := strings.Cut(text, annotationSeparator)
	header = strings.TrimRight(header, " ")
	if !strings.HasSuffix(header, ".") {
		return &ParseError{Line: n, Text: text, Msg: "suite header must end with '.'"}
	}
	name := strings.TrimSuffix(header, ".")
	if !validName(name) {
		return &ParseError{Line: n, Text: text, Msg: "invalid suite name"}
	}
	suite := types.TestSuite{Name: name}
	if hasAnnotation {
		value, ok := strings.CutPrefix(strings.TrimSpace(annotation), typeParamPrefix)
		if !ok {
			return &ParseError{Line: n, Text: text, Msg: "unrecognized suite annotation"}
		}
		suite.TypeParam = value
	}
	p.current = &suite
	p.started = true
	p.headerLine = n
	p.headerText = text
	p.state = stateSuite
	return nil
}

func (p *parser) caseLine(n int, text string) error {
	if p.state == stateStart {
		return &ParseError{Line: n, Text: text, Msg: "test case outside of a suite"}
	}
	body := strings.TrimLeft(text, " \t")
	name, annotation, hasAnnotation := strings.Cut(body, annotationSeparator)
	name = strings.TrimRight(name, " ")
	if !validName(name) {
		return &ParseError{Line: n, Text: text, Msg: "invalid test case name"}
	}
	id := types.TestIdentity{Suite: p.current.Name, Case: name, Kind: types.VariantPlain}
	switch {
	case hasAnnotation:
		value, ok := strings.CutPrefix(strings.TrimSpace(annotation), getParamPrefix)
		if !ok {
			return &ParseError{Line: n, Text: text, Msg: "unrecognized test case annotation"}
		}
		id.Variant = value
		id.Kind = types.VariantParameterized
	case p.current.TypeParam != "":
		id.Variant = p.current.TypeParam
		id.Kind = types.VariantTyped
	}
	for _, existing := range p.current.Cases {
		if existing.Case == id.Case {
			return &ParseError{Line: n, Text: text, Msg: "duplicate test case"}
		}
	}
	p.current.Cases = append(p.current.Cases, id)
	p.state = stateCases
	return nil
}

func (p *parser) closeSuite() error {
	switch p.state {
	case stateSuite:
		return &ParseError{Line: p.headerLine, Text: p.headerText, Msg: "suite has no test cases"}
	case stateCases:
		p.suites = append(p.suites, *p.current)
	}
	p.current = nil
	p.state = stateStart
	return nil
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t#:")
}
