package css

import (
	"bytes"
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses stylesheets into order preserving tree of rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{
		Items:    make([]StylesheetItem, 0),
		Warnings: make([]string, 0),
	}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)

	b := p.parseBlock(parser, sheet, css.ErrorGrammar)
	sheet.Items = append(sheet.Items, b.items...)
	if len(b.decls) > 0 {
		sheet.Warnings = append(sheet.Warnings, "declarations outside of any rule ignored")
	}
	return sheet
}

// block is the content between braces (or of the whole stylesheet).
type block struct {
	items []StylesheetItem
	decls []Declaration
	raw   strings.Builder
}

// done reports selectors which never got their block.
func (b *block) done(sheet *Stylesheet, pending []string) *block {
	if len(pending) > 0 {
		sheet.Warnings = append(sheet.Warnings, "selector without block ignored: "+strings.Join(pending, ", "))
	}
	return b
}

// parseRaw parses block content of unknown @-rule as a rule list. It fails
// when anything in the content cannot be represented without loss.
func (p *Parser) parseRaw(raw string) (*block, bool) {
	scratch := &Stylesheet{}
	b := p.parseBlock(css.NewParser(parse.NewInput(strings.NewReader(raw)), false), scratch, css.ErrorGrammar)
	if len(scratch.Warnings) > 0 || b.raw.Len() > 0 || len(b.items)+len(b.decls) == 0 {
		return nil, false
	}
	return b, true
}

// parseBlock collects block content until end grammar is reached or input
// ends. Parse errors are reported as warnings and parsing continues.
func (p *Parser) parseBlock(parser *css.Parser, sheet *Stylesheet, end css.GrammarType) *block {
	b := &block{}

	// selectors preceding comma in a selector list
	var pending []string

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			err := parser.Err()
			var perr *parse.Error
			if errors.As(err, &perr) {
				sheet.Warnings = append(sheet.Warnings, perr.Error())
				p.log.Debug("CSS parse error", zap.Error(err))
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				sheet.Warnings = append(sheet.Warnings, err.Error())
				p.log.Debug("CSS read error", zap.Error(err))
			}
			return b.done(sheet, pending)

		case end:
			return b.done(sheet, pending)

		case css.CommentGrammar:
			continue

		case css.QualifiedRuleGrammar:
			pending = append(pending, joinTokens(data, parser.Values()))

		case css.BeginRulesetGrammar:
			selector := strings.Join(append(pending, joinTokens(data, parser.Values())), ", ")
			pending = nil

			inner := p.parseBlock(parser, sheet, css.EndRulesetGrammar)
			b.items = append(b.items, StylesheetItem{
				Rule: &Rule{Selector: selector, Declarations: inner.decls, Items: inner.items},
			})

		case css.AtRuleGrammar:
			b.items = append(b.items, StylesheetItem{
				AtRule: &AtRule{Name: string(data), Prelude: joinTokens(nil, parser.Values())},
			})

		case css.BeginAtRuleGrammar:
			rule := &AtRule{Name: string(data), Prelude: joinTokens(nil, parser.Values()), Block: true}
			inner := p.parseBlock(parser, sheet, css.EndAtRuleGrammar)
			rule.Items, rule.Declarations = inner.items, inner.decls
			rule.Raw = strings.TrimSpace(inner.raw.String())
			if rule.Raw != "" {
				// tokenizer knows only a handful of block @-rules, content of
				// the rest (@container, @scope, ...) may still be a rule list
				if sub, ok := p.parseRaw(rule.Raw); ok {
					rule.Items = append(rule.Items, sub.items...)
					rule.Declarations = append(rule.Declarations, sub.decls...)
					rule.Raw = ""
				}
			}
			p.log.Debug("Parsed @-rule block", zap.String("rule", rule.Name), zap.String("prelude", rule.Prelude),
				zap.Int("items", len(rule.Items)), zap.Int("declarations", len(rule.Declarations)))
			b.items = append(b.items, StylesheetItem{AtRule: rule})

		case css.DeclarationGrammar:
			if decl, ok := parseDeclaration(data, parser.Values()); ok {
				b.decls = append(b.decls, decl)
			}

		case css.CustomPropertyGrammar:
			b.decls = append(b.decls, Declaration{
				Property: string(data),
				Value:    strings.TrimSpace(rawTokens(parser.Values())),
			})

		case css.TokenGrammar:
			// content of @-rules parser does not know structure of
			b.raw.Write(data)
		}
	}
}

// parseDeclaration converts declaration tokens. Empty declarations are
// dropped.
func parseDeclaration(name []byte, values []css.Token) (Declaration, bool) {
	decl := Declaration{Property: string(name)}

	values, decl.Important = cutImportant(values)
	decl.Value = joinTokens(nil, values)
	if decl.Value == "" {
		return decl, false
	}
	return decl, true
}

// cutImportant removes trailing "!important" from value tokens.
func cutImportant(values []css.Token) ([]css.Token, bool) {
	i := lastSignificant(values, len(values))
	if i < 0 || values[i].TokenType != css.IdentToken || !strings.EqualFold(string(values[i].Data), "important") {
		return values, false
	}
	j := lastSignificant(values, i)
	if j < 0 || values[j].TokenType != css.DelimToken || string(values[j].Data) != "!" {
		return values, false
	}
	return values[:j], true
}

// lastSignificant returns index of the last non-whitespace token before end
// or -1.
func lastSignificant(values []css.Token, end int) int {
	for i := end - 1; i >= 0; i-- {
		if values[i].TokenType != css.WhitespaceToken && values[i].TokenType != css.CommentToken {
			return i
		}
	}
	return -1
}

// joinTokens builds text from prefix and tokens collapsing whitespace runs
// into single space and trimming it at both ends.
func joinTokens(prefix []byte, tokens []css.Token) string {
	var sb strings.Builder
	sb.Write(prefix)

	space := false
	for _, t := range tokens {
		switch t.TokenType {
		case css.WhitespaceToken:
			space = sb.Len() > 0
			continue
		case css.CommentToken:
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.Write(t.Data)
	}
	return sb.String()
}

// rawTokens concatenates tokens as is.
func rawTokens(tokens []css.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.Write(t.Data)
	}
	return sb.String()
}
