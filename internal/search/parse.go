// Package search parses textual IMAP SEARCH keys, as typed by a user
// (e.g. "UnSeen UnDeleted" or `OR FROM alice SUBJECT "weekly report"`),
// into go-imap search criteria.
package search

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

// ErrEmpty is returned for a blank expression.
var ErrEmpty = errors.New("search expression is empty")

// SyntaxError describes where an expression stopped making sense.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("search syntax error at token %d: %s", e.Pos, e.Msg)
}

// dateLayout is the RFC 3501 date format ("1-Feb-1994").
const dateLayout = "2-Jan-2006"

const flagRecent imap.Flag = `\Recent`

var simpleFlags = map[string]imap.Flag{
	"ANSWERED": imap.FlagAnswered,
	"DELETED":  imap.FlagDeleted,
	"DRAFT":    imap.FlagDraft,
	"FLAGGED":  imap.FlagFlagged,
	"SEEN":     imap.FlagSeen,
	"RECENT":   flagRecent,
}

var negatedFlags = map[string]imap.Flag{
	"UNANSWERED": imap.FlagAnswered,
	"UNDELETED":  imap.FlagDeleted,
	"UNDRAFT":    imap.FlagDraft,
	"UNFLAGGED":  imap.FlagFlagged,
	"UNSEEN":     imap.FlagSeen,
	"OLD":        flagRecent,
}

var addressHeaders = map[string]string{
	"BCC":     "Bcc",
	"CC":      "Cc",
	"FROM":    "From",
	"TO":      "To",
	"SUBJECT": "Subject",
}

// Parse turns expr into search criteria. Keys are case-insensitive and
// implicitly ANDed.
func Parse(expr string) (*imap.SearchCriteria, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ErrEmpty
	}

	p := &parser{toks: toks}
	criteria := &imap.SearchCriteria{}
	for !p.done() {
		if err := p.parseKey(criteria); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}

// Valid reports whether expr parses.
func Valid(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

type tokenKind int

const (
	tokAtom tokenKind = iota
	tokQuoted
	tokOpen
	tokClose
)

type token struct {
	kind  tokenKind
	value string
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	r := []rune(expr)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokOpen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokClose})
			i++
		case c == '"':
			var b strings.Builder
			i++
			closed := false
			for i < len(r) {
				if r[i] == '\\' && i+1 < len(r) {
					b.WriteRune(r[i+1])
					i += 2
					continue
				}
				if r[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteRune(r[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: len(toks), Msg: "unterminated quoted string"}
			}
			toks = append(toks, token{kind: tokQuoted, value: b.String()})
		default:
			start := i
			for i < len(r) && !strings.ContainsRune(" \t\r\n()\"", r[i]) {
				i++
			}
			toks = append(toks, token{kind: tokAtom, value: string(r[start:i])})
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) next() (token, bool) {
	if p.done() {
		return token{}, false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

// str consumes an atom or quoted string argument.
func (p *parser) str(key string) (string, error) {
	t, ok := p.next()
	if !ok || (t.kind != tokAtom && t.kind != tokQuoted) {
		return "", p.errorf("%s needs a string argument", key)
	}
	return t.value, nil
}

func (p *parser) date(key string) (time.Time, error) {
	s, err := p.str(key)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, p.errorf("%s: invalid date %q", key, s)
	}
	return d, nil
}

func (p *parser) number(key string) (int64, error) {
	s, err := p.str(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, p.errorf("%s: invalid number %q", key, s)
	}
	return n, nil
}

// parseKey consumes one search key and merges it into c.
func (p *parser) parseKey(c *imap.SearchCriteria) error {
	t, ok := p.next()
	if !ok {
		return p.errorf("missing search key")
	}

	switch t.kind {
	case tokOpen:
		closed := false
		for !p.done() {
			if p.toks[p.pos].kind == tokClose {
				p.pos++
				closed = true
				break
			}
			if err := p.parseKey(c); err != nil {
				return err
			}
		}
		if !closed {
			return p.errorf("unbalanced parenthesis")
		}
		return nil
	case tokClose:
		return p.errorf("unexpected )")
	case tokQuoted:
		return p.errorf("unexpected string %q", t.value)
	}

	key := strings.ToUpper(t.value)

	if flag, ok := simpleFlags[key]; ok {
		c.Flag = append(c.Flag, flag)
		return nil
	}
	if flag, ok := negatedFlags[key]; ok {
		c.NotFlag = append(c.NotFlag, flag)
		return nil
	}
	if header, ok := addressHeaders[key]; ok {
		v, err := p.str(key)
		if err != nil {
			return err
		}
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: header, Value: v})
		return nil
	}

	switch key {
	case "ALL":
	case "NEW":
		c.Flag = append(c.Flag, flagRecent)
		c.NotFlag = append(c.NotFlag, imap.FlagSeen)
	case "KEYWORD", "UNKEYWORD":
		v, err := p.str(key)
		if err != nil {
			return err
		}
		if key == "KEYWORD" {
			c.Flag = append(c.Flag, imap.Flag(v))
		} else {
			c.NotFlag = append(c.NotFlag, imap.Flag(v))
		}
	case "HEADER":
		field, err := p.str(key)
		if err != nil {
			return err
		}
		v, err := p.str(key)
		if err != nil {
			return err
		}
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: field, Value: v})
	case "BODY":
		v, err := p.str(key)
		if err != nil {
			return err
		}
		c.Body = append(c.Body, v)
	case "TEXT":
		v, err := p.str(key)
		if err != nil {
			return err
		}
		c.Text = append(c.Text, v)
	case "SINCE", "BEFORE", "ON", "SENTSINCE", "SENTBEFORE", "SENTON":
		d, err := p.date(key)
		if err != nil {
			return err
		}
		applyDate(c, key, d)
	case "LARGER", "SMALLER":
		n, err := p.number(key)
		if err != nil {
			return err
		}
		if key == "LARGER" {
			if n > c.Larger {
				c.Larger = n
			}
			return nil
		}
		// A zero Smaller means no limit, so SMALLER 0 cannot be expressed.
		if n == 0 {
			return p.errorf("SMALLER must be positive")
		}
		if c.Smaller == 0 || n < c.Smaller {
			c.Smaller = n
		}
	case "UID":
		v, err := p.str(key)
		if err != nil {
			return err
		}
		set, err := imap.ParseUIDSet(v)
		if err != nil {
			return p.errorf("UID: invalid set %q", v)
		}
		c.UID = append(c.UID, set)
	case "NOT":
		var sub imap.SearchCriteria
		if err := p.parseKey(&sub); err != nil {
			return err
		}
		c.Not = append(c.Not, sub)
	case "OR":
		var pair [2]imap.SearchCriteria
		for i := range pair {
			if err := p.parseKey(&pair[i]); err != nil {
				return err
			}
		}
		c.Or = append(c.Or, pair)
	default:
		set, err := imap.ParseSeqSet(t.value)
		if err != nil {
			return p.errorf("unsupported search key %q", t.value)
		}
		c.SeqNum = append(c.SeqNum, set)
	}
	return nil
}

// applyDate intersects a date key with the range already in c.
func applyDate(c *imap.SearchCriteria, key string, d time.Time) {
	next := d.AddDate(0, 0, 1)
	switch key {
	case "SINCE":
		c.Since = later(c.Since, d)
	case "BEFORE":
		c.Before = earlier(c.Before, d)
	case "ON":
		c.Since = later(c.Since, d)
		c.Before = earlier(c.Before, next)
	case "SENTSINCE":
		c.SentSince = later(c.SentSince, d)
	case "SENTBEFORE":
		c.SentBefore = earlier(c.SentBefore, d)
	case "SENTON":
		c.SentSince = later(c.SentSince, d)
		c.SentBefore = earlier(c.SentBefore, next)
	}
}

func later(cur, d time.Time) time.Time {
	if cur.IsZero() || d.After(cur) {
		return d
	}
	return cur
}

func earlier(cur, d time.Time) time.Time {
	if cur.IsZero() || d.Before(cur) {
		return d
	}
	return cur
}
