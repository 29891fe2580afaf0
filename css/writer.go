package css

import (
	"io"
	"strings"
)

// Writer controls how stylesheet is serialized.
type Writer struct {
	// Compact drops indentation, line breaks and optional spaces.
	Compact bool
}

// Write writes the stylesheet to w in source order.
func (wr Writer) Write(w io.Writer, s *Stylesheet) (int64, error) {
	pr := &printer{w: w, compact: wr.Compact}
	pr.items(s.Items, 0)
	if wr.Compact && pr.n > 0 {
		pr.print("\n")
	}
	return pr.n, pr.err
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	return Writer{}.Write(w, s)
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

// printer keeps track of written bytes and remembers the first error, all
// writes after it are ignored.
type printer struct {
	w       io.Writer
	compact bool
	n       int64
	err     error
}

func (p *printer) print(parts ...string) {
	for _, s := range parts {
		if p.err != nil {
			return
		}
		n, err := io.WriteString(p.w, s)
		p.n += int64(n)
		p.err = err
	}
}

func (p *printer) indent(depth int) string {
	if p.compact {
		return ""
	}
	return strings.Repeat("  ", depth)
}

func (p *printer) open(depth int, head string) {
	if p.compact {
		p.print(head, "{")
		return
	}
	p.print(p.indent(depth), head, " {\n")
}

func (p *printer) close(depth int) {
	if p.compact {
		p.print("}")
		return
	}
	p.print(p.indent(depth), "}\n")
}

// separate puts blank line between items in pretty mode, compact
// declarations need ";" before nested item.
func (p *printer) separate() {
	if p.compact {
		p.print(";")
		return
	}
	p.print("\n")
}

func (p *printer) items(items []StylesheetItem, depth int) {
	for i, item := range items {
		// blank line between items
		if i > 0 && !p.compact {
			p.print("\n")
		}
		switch {
		case item.Rule != nil:
			p.open(depth, item.Rule.Selector)
			p.declarations(item.Rule.Declarations, depth+1)
			if len(item.Rule.Declarations) > 0 && len(item.Rule.Items) > 0 {
				p.separate()
			}
			p.items(item.Rule.Items, depth+1)
			p.close(depth)
		case item.AtRule != nil:
			p.atRule(item.AtRule, depth)
		}
	}
}

func (p *printer) atRule(r *AtRule, depth int) {
	head := r.Name
	if r.Prelude != "" {
		head += " " + r.Prelude
	}

	if !r.Block {
		if p.compact {
			p.print(head, ";")
		} else {
			p.print(p.indent(depth), head, ";\n")
		}
		return
	}

	p.open(depth, head)
	p.declarations(r.Declarations, depth+1)
	if len(r.Declarations) > 0 && len(r.Items) > 0 {
		p.separate()
	}
	p.items(r.Items, depth+1)
	if r.Raw != "" {
		if p.compact {
			p.print(r.Raw)
		} else {
			p.print(p.indent(depth+1), r.Raw, "\n")
		}
	}
	p.close(depth)
}

func (p *printer) declarations(decls []Declaration, depth int) {
	for i, d := range decls {
		if p.compact {
			if i > 0 {
				p.print(";")
			}
			p.print(d.Property, ":", d.Value)
			if d.Important {
				p.print("!important")
			}
			continue
		}
		p.print(p.indent(depth), d.Property, ": ", d.Value)
		if d.Important {
			p.print(" !important")
		}
		p.print(";\n")
	}
}
