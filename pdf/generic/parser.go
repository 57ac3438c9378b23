package generic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Common errors
var (
	ErrUnexpectedEOF = errors.New("unexpected end of file")
	ErrInvalidObject = errors.New("invalid PDF object")
	ErrInvalidStream = errors.New("invalid PDF stream")
)

// LengthResolver looks up an indirect /Length value while parsing a stream.
type LengthResolver func(ref Reference) (int, bool)

// Parser reads PDF objects from a byte slice.
type Parser struct {
	data []byte
	pos  int
}

// NewParser creates a parser positioned at offset.
func NewParser(data []byte, offset int) *Parser {
	return &Parser{data: data, pos: offset}
}

// Pos returns the current offset.
func (p *Parser) Pos() int { return p.pos }

// Seek moves to an absolute offset.
func (p *Parser) Seek(offset int) { p.pos = offset }

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == 0 || b == '\f'
}

func isDelimiter(b byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), b) >= 0
}

// SkipWhitespace skips whitespace and comments.
func (p *Parser) SkipWhitespace() {
	for p.pos < len(p.data) {
		b := p.data[p.pos]
		switch {
		case isWhitespace(b):
			p.pos++
		case b == '%':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

// Keyword reads a bare token such as "obj", "true" or an operator.
func (p *Parser) Keyword() string {
	p.SkipWhitespace()
	start := p.pos
	for p.pos < len(p.data) && !isWhitespace(p.data[p.pos]) && !isDelimiter(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ParseObject parses the next object, folding "n g R" into a Reference.
func (p *Parser) ParseObject() (Object, error) {
	p.SkipWhitespace()
	if p.pos >= len(p.data) {
		return nil, ErrUnexpectedEOF
	}
	switch b := p.data[p.pos]; {
	case b == '/':
		return p.parseName()
	case b == '(':
		return p.parseLiteral()
	case b == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			return p.parseDictionary()
		}
		return p.parseHex()
	case b == '[':
		return p.parseArray()
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return p.parseNumberOrReference()
	}

	start := p.pos
	switch kw := p.Keyword(); kw {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	case "null":
		return Null{}, nil
	case "":
		p.pos++
		return nil, fmt.Errorf("%w: unexpected byte %q at %d", ErrInvalidObject, p.data[start], start)
	default:
		return nil, fmt.Errorf("%w: unexpected keyword %q at %d", ErrInvalidObject, kw, start)
	}
}

func (p *Parser) parseName() (Object, error) {
	p.pos++
	var buf []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && p.pos+2 < len(p.data) {
			if v, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				buf = append(buf, byte(v))
				p.pos += 3
				continue
			}
		}
		buf = append(buf, c)
		p.pos++
	}
	return Name(buf), nil
}

func (p *Parser) parseLiteral() (Object, error) {
	p.pos++
	var buf []byte
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return &String{Value: buf}, nil
			}
		case '\\':
			if p.pos >= len(p.data) {
				return nil, ErrUnexpectedEOF
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'b':
				c = '\b'
			case 'f':
				c = '\f'
			case '\r':
				if p.pos < len(p.data) && p.data[p.pos] == '\n' {
					p.pos++
				}
				continue
			case '\n':
				continue
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						v = v*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					c = byte(v)
				} else {
					c = e
				}
			}
		}
		buf = append(buf, c)
	}
	return nil, ErrUnexpectedEOF
}

func (p *Parser) parseHex() (Object, error) {
	p.pos++
	end := bytes.IndexByte(p.data[p.pos:], '>')
	if end < 0 {
		return nil, ErrUnexpectedEOF
	}
	digits := make([]byte, 0, end)
	for _, c := range p.data[p.pos : p.pos+end] {
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
	}
	p.pos += end + 1
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	v, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex string: %v", ErrInvalidObject, err)
	}
	return &String{Value: v, Hex: true}, nil
}

func (p *Parser) parseArray() (Object, error) {
	p.pos++
	arr := Array{}
	for {
		p.SkipWhitespace()
		if p.pos >= len(p.data) {
			return nil, ErrUnexpectedEOF
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		item, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func (p *Parser) parseDictionary() (Object, error) {
	p.pos += 2
	d := NewDictionary()
	for {
		p.SkipWhitespace()
		if p.pos+1 >= len(p.data) {
			return nil, ErrUnexpectedEOF
		}
		if p.data[p.pos] == '>' && p.data[p.pos+1] == '>' {
			p.pos += 2
			return d, nil
		}
		key, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		name, ok := key.(Name)
		if !ok {
			return nil, fmt.Errorf("%w: dictionary key must be a name", ErrInvalidObject)
		}
		val, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(Null); !isNull {
			d.Set(string(name), val)
		}
	}
}

func (p *Parser) readNumberToken() string {
	start := p.pos
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' {
			p.pos++
			continue
		}
		break
	}
	return string(p.data[start:p.pos])
}

func (p *Parser) parseNumberOrReference() (Object, error) {
	tok := p.readNumberToken()
	first, err := parseNumber(tok)
	if err != nil {
		return nil, err
	}
	num, isInt := first.(Integer)
	if !isInt || num < 0 {
		return first, nil
	}

	// Look ahead for "g R" without consuming on mismatch.
	save := p.pos
	p.SkipWhitespace()
	genTok := p.readNumberToken()
	if gen, err := strconv.Atoi(genTok); err == nil && gen >= 0 {
		p.SkipWhitespace()
		if p.pos < len(p.data) && p.data[p.pos] == 'R' &&
			(p.pos+1 == len(p.data) || isWhitespace(p.data[p.pos+1]) || isDelimiter(p.data[p.pos+1])) {
			p.pos++
			return Reference{Number: int(num), Generation: gen}, nil
		}
	}
	p.pos = save
	return first, nil
}

func parseNumber(tok string) (Object, error) {
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return Integer(i), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrInvalidObject, tok)
	}
	return Real(f), nil
}

// ParseIndirect parses "n g obj ... endobj" at the current offset. Stream
// lengths that are references are looked up through resolve; when the
// declared length is wrong the payload is recovered by scanning for
// "endstream".
func (p *Parser) ParseIndirect(resolve LengthResolver) (*Indirect, error) {
	p.SkipWhitespace()
	num, err := strconv.Atoi(p.readNumberToken())
	if err != nil {
		return nil, fmt.Errorf("%w: missing object number at %d", ErrInvalidObject, p.pos)
	}
	p.SkipWhitespace()
	gen, err := strconv.Atoi(p.readNumberToken())
	if err != nil {
		return nil, fmt.Errorf("%w: missing generation at %d", ErrInvalidObject, p.pos)
	}
	if kw := p.Keyword(); kw != "obj" {
		return nil, fmt.Errorf("%w: expected obj, got %q", ErrInvalidObject, kw)
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	ind := &Indirect{Reference: Reference{Number: num, Generation: gen}, Object: obj}

	dict, ok := obj.(*Dictionary)
	if !ok {
		return ind, nil
	}
	save := p.pos
	if p.Keyword() != "stream" {
		p.pos = save
		return ind, nil
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\r' {
		p.pos++
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\n' {
		p.pos++
	}
	data, err := p.streamData(dict, resolve)
	if err != nil {
		return nil, err
	}
	ind.Object = &Stream{Dict: dict, Data: data}
	return ind, nil
}

func (p *Parser) streamData(dict *Dictionary, resolve LengthResolver) ([]byte, error) {
	start := p.pos
	length := -1
	switch v := dict.Get("Length").(type) {
	case Integer:
		length = int(v)
	case Reference:
		if resolve != nil {
			if n, ok := resolve(v); ok {
				length = n
			}
		}
	}
	if length >= 0 && start+length <= len(p.data) {
		q := NewParser(p.data, start+length)
		if q.Keyword() == "endstream" {
			p.pos = q.pos
			return p.data[start : start+length], nil
		}
	}

	end := bytes.Index(p.data[start:], []byte("endstream"))
	if end < 0 {
		return nil, fmt.Errorf("%w: missing endstream", ErrInvalidStream)
	}
	data := p.data[start : start+end]
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	p.pos = start + end + len("endstream")
	return data, nil
}
