package skeleton

import (
	"regexp"

	"github.com/elixir-editor/assist/pkg/types"
)

// Brace-delimited bodies are matched with a fixed nesting bound: the outer
// pair plus three nested levels. Deeper bodies do not match as a single block.
const (
	nestedL3 = `\{[^{}]*\}`
	nestedL2 = `\{(?:[^{}]|` + nestedL3 + `)*\}`
	nestedL1 = `\{(?:[^{}]|` + nestedL2 + `)*\}`
	bodyExpr = `\{((?:[^{}]|` + nestedL1 + `)*)\}`
)

// MaxNestedBraces is the number of brace levels a body may contain inside its
// own braces and still be extracted as one block.
const MaxNestedBraces = 3

type blockPattern struct {
	kind types.BlockKind
	re   *regexp.Regexp
}

// Patterns run in this order; a later pattern overwrites an earlier one for the same name.
var blockPatterns = []blockPattern{
	{
		kind: types.BlockFunction,
		re: regexp.MustCompile(`(?:export\s+)?(?:default\s+)?(?:async\s+)?\b(?:function\*?|func|fn)\s+(\w+)\s*\([^)]*\)[^{};=]*?\s*` + bodyExpr),
	},
	{
		kind: types.BlockLambda,
		re: regexp.MustCompile(`(?:(?:export\s+)?(?:const|let|var)\s+)?\b(\w+)\s*=\s*(?:async\s+)?\([^)]*\)\s*=>\s*` + bodyExpr),
	},
	{
		kind: types.BlockClass,
		re: regexp.MustCompile(`(?:export\s+)?(?:default\s+)?(?:abstract\s+)?\bclass\s+(\w+)(?:\s+extends\s+[\w.]+)?\s*` + bodyExpr),
	},
	{
		kind: types.BlockMethod,
		re: regexp.MustCompile(`(?m)^[ \t]*(?:(?:static|async|get|set|public|private|protected|override)\s+)*(\w+)\s*\([^)]*\)\s*` + bodyExpr),
	},
}

// Words that look like a bare method header but introduce a statement
var statementKeywords = map[string]bool{
	"if":       true,
	"else":     true,
	"for":      true,
	"while":    true,
	"switch":   true,
	"catch":    true,
	"with":     true,
	"return":   true,
	"function": true,
	"do":       true,
}

// BlockSet is an insertion-ordered mapping from block name to block.
// Overwriting a name keeps its original position.
type BlockSet struct {
	names  []string
	blocks map[string]types.CodeBlock
}

// NewBlockSet creates an empty set
func NewBlockSet() *BlockSet {
	return &BlockSet{blocks: make(map[string]types.CodeBlock)}
}

// Put stores a block, replacing any previous block with the same name
func (s *BlockSet) Put(b types.CodeBlock) {
	if _, ok := s.blocks[b.Name]; !ok {
		s.names = append(s.names, b.Name)
	}
	s.blocks[b.Name] = b
}

// Get returns the block stored under name
func (s *BlockSet) Get(name string) (types.CodeBlock, bool) {
	b, ok := s.blocks[name]
	return b, ok
}

// Names returns block names in first-seen order
func (s *BlockSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of distinct names
func (s *BlockSet) Len() int {
	return len(s.names)
}

// Blocks returns the blocks in first-seen name order
func (s *BlockSet) Blocks() []types.CodeBlock {
	out := make([]types.CodeBlock, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.blocks[name])
	}
	return out
}

// ExtractBlocks scans text for named structural units.
// Text that matches no pattern yields an empty set.
func ExtractBlocks(text string) *BlockSet {
	set := NewBlockSet()
	for _, p := range blockPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			// m[0:2] whole match, m[2:4] name, m[4:6] body
			name := text[m[2]:m[3]]
			if p.kind == types.BlockMethod && statementKeywords[name] {
				continue
			}
			start := m[0]
			if p.kind == types.BlockMethod {
				// (?m)^[ \t]* swallows indentation; keep it out of the block text
				start = trimIndent(text, start, m[2])
			}
			set.Put(types.CodeBlock{
				Name:     name,
				Kind:     p.kind,
				FullText: text[start:m[1]],
				BodyText: text[m[4]:m[5]],
				Start:    start,
				End:      m[1],
			})
		}
	}
	return set
}

func trimIndent(text string, start, limit int) int {
	for start < limit && (text[start] == ' ' || text[start] == '\t') {
		start++
	}
	return start
}
