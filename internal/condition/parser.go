package condition

// parser turns a token stream into a Predicate:
//
//	predicate := WORD operator operand EOF
//	operator  := "contains_any" | "in" | "==" | "!="
//	operand   := list | literal            (list form for contains_any / in)
//	list      := "[" [items] "]" | items
//	items     := [literal] { "," [literal] }
//	literal   := WORD | STRING
type parser struct {
	source string
	tokens []Token
	pos    int
}

func (p *parser) parse() Predicate {
	pred := Predicate{source: p.source}

	if p.source == "" {
		return p.fail(pred, 0, "empty predicate")
	}
	if last := p.tokens[len(p.tokens)-1]; last.Type == TokenIllegal {
		return p.fail(pred, last.Position, last.Value)
	}

	field := p.next()
	if field.Type != TokenWord || isKeyword(field.Value) {
		return p.fail(pred, field.Position, "expected field reference, got "+field.String())
	}
	pred.field = ResolveField(field.Value)
	if pred.field == "" {
		return p.fail(pred, field.Position, "empty field name")
	}

	opTok := p.next()
	switch {
	case opTok.Type == TokenWord && opTok.Value == "contains_any":
		pred.op = OpContainsAny
	case opTok.Type == TokenWord && opTok.Value == "in":
		pred.op = OpIn
	case opTok.Type == TokenEq:
		pred.op = OpEq
	case opTok.Type == TokenNe:
		pred.op = OpNe
	case opTok.Type == TokenEOF:
		return p.fail(pred, opTok.Position, "missing operator")
	default:
		return p.fail(pred, opTok.Position, "unsupported operator "+opTok.String())
	}

	var (
		lits []Literal
		err  *ParseError
	)
	if pred.op == OpContainsAny || pred.op == OpIn {
		lits, err = p.parseList()
	} else {
		lits, err = p.parseScalar()
	}
	if err != nil {
		pred.op = OpInvalid
		pred.err = err
		return pred
	}

	if end := p.next(); end.Type != TokenEOF {
		return p.fail(pred, end.Position, "unexpected trailing "+end.String())
	}

	pred.literals = lits
	return pred
}

func (p *parser) parseScalar() ([]Literal, *ParseError) {
	tok := p.next()
	switch tok.Type {
	case TokenWord:
		return []Literal{{Text: tok.Value}}, nil
	case TokenString:
		return []Literal{{Text: tok.Value, Quoted: true}}, nil
	case TokenEOF:
		return nil, p.errorAt(tok.Position, "missing operand")
	default:
		return nil, p.errorAt(tok.Position, "expected literal, got "+tok.String())
	}
}

func (p *parser) parseList() ([]Literal, *ParseError) {
	first := p.peek()
	if first.Type == TokenEOF {
		return nil, p.errorAt(first.Position, "missing operand")
	}
	bracketed := first.Type == TokenLBracket
	if bracketed {
		p.next()
	}

	lits := make([]Literal, 0, 4)
	expectItem := true // false right after an item, until a comma
	for {
		tok := p.next()
		switch tok.Type {
		case TokenWord, TokenString:
			if !expectItem {
				return nil, p.errorAt(tok.Position, "missing ',' before "+tok.String())
			}
			lits = append(lits, Literal{Text: tok.Value, Quoted: tok.Type == TokenString})
			expectItem = false
		case TokenComma:
			// empty items are skipped
			expectItem = true
		case TokenRBracket:
			if !bracketed {
				return nil, p.errorAt(tok.Position, "unbalanced ']'")
			}
			return lits, nil
		case TokenEOF:
			if bracketed {
				return nil, p.errorAt(tok.Position, "unbalanced '[', missing ']'")
			}
			return lits, nil
		default:
			return nil, p.errorAt(tok.Position, "unexpected "+tok.String()+" in list")
		}
	}
}

func (p *parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) fail(pred Predicate, pos int, msg string) Predicate {
	pred.op = OpInvalid
	pred.literals = nil
	pred.err = p.errorAt(pos, msg)
	return pred
}

func (p *parser) errorAt(pos int, msg string) *ParseError {
	return &ParseError{Predicate: p.source, Pos: pos, Msg: msg}
}

func isKeyword(s string) bool {
	return s == "contains_any" || s == "in"
}
