package goldmark

import (
	"regexp"
	"strconv"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var kindSourceRef = ast.NewNodeKind("SourceRef")

// sourceRef is an inline reference to a cited source, written [n] in the
// answer text. Ref 0 marks the [Error] label.
type sourceRef struct {
	ast.BaseInline
	Ref int
}

func (n *sourceRef) Kind() ast.NodeKind { return kindSourceRef }

func (n *sourceRef) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Ref": strconv.Itoa(n.Ref)}, nil)
}

func (n *sourceRef) label() string {
	if n.Ref == 0 {
		return "[Error]"
	}
	return "[" + strconv.Itoa(n.Ref) + "]"
}

var sourceRefPattern = regexp.MustCompile(`^\[(?:(\d{1,3})|Error)\]`)

// sourceRefParser claims "[n]" and "[Error]" before the link parser sees
// them. A bracket followed by "(" or "[" is left alone so inline and
// reference links keep working.
type sourceRefParser struct{}

func (sourceRefParser) Trigger() []byte {
	return []byte{'['}
}

func (sourceRefParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	m := sourceRefPattern.FindSubmatch(line)
	if m == nil {
		return nil
	}
	if rest := line[len(m[0]):]; len(rest) > 0 && (rest[0] == '(' || rest[0] == '[') {
		return nil
	}
	ref := 0
	if len(m[1]) > 0 {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil || n == 0 {
			return nil
		}
		ref = n
	}
	block.Advance(len(m[0]))
	return &sourceRef{Ref: ref}
}
