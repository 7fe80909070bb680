package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RunStatus is the shared on/off flag of the purchase loop.
type RunStatus string

const (
	StatusIdle     RunStatus = ""
	StatusWork     RunStatus = "work"
	StatusStopping RunStatus = "stopping"
)

func (s RunStatus) IsWork() bool     { return s == StatusWork }
func (s RunStatus) IsStopping() bool { return s == StatusStopping }

func (s RunStatus) String() string {
	if s == StatusIdle {
		return "idle"
	}
	return string(s)
}

// AdminCursor records which free-text prompt the admin is answering.
type AdminCursor int

const (
	CursorIdle AdminCursor = iota
	CursorAwaitingCountry
	CursorAwaitingDeleteCode
	CursorAwaitingAPIKey
)

var cursorText = map[AdminCursor]string{
	CursorIdle:               "",
	CursorAwaitingCountry:    "add",
	CursorAwaitingDeleteCode: "del",
	CursorAwaitingAPIKey:     "up",
}

func (c AdminCursor) String() string {
	if s, ok := cursorText[c]; ok && s != "" {
		return s
	}
	return "idle"
}

func (c AdminCursor) MarshalText() ([]byte, error) {
	return []byte(cursorText[c]), nil
}

// UnmarshalText maps unknown cursor values to CursorIdle so a stale or
// hand-edited document never blocks the admin.
func (c *AdminCursor) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	for k, v := range cursorText {
		if v == s {
			*c = k
			return nil
		}
	}
	*c = CursorIdle
	return nil
}

// Country maps a generated short code to the provider's country id.
type Country struct {
	Code      string
	CountryID string
}

// Countries keeps insertion order and is stored as a JSON object.
type Countries []Country

func (cs Countries) Len() int { return len(cs) }

func (cs Countries) index(code string) int {
	for i, c := range cs {
		if c.Code == code {
			return i
		}
	}
	return -1
}

func (cs Countries) Has(code string) bool { return cs.index(code) >= 0 }

func (cs Countries) Get(code string) (string, bool) {
	if i := cs.index(code); i >= 0 {
		return cs[i].CountryID, true
	}
	return "", false
}

// Add inserts or replaces the entry for code.
func (cs *Countries) Add(code, countryID string) {
	if i := cs.index(code); i >= 0 {
		(*cs)[i].CountryID = countryID
		return
	}
	*cs = append(*cs, Country{Code: code, CountryID: countryID})
}

// Delete removes code and reports whether it was present.
func (cs *Countries) Delete(code string) bool {
	i := cs.index(code)
	if i < 0 {
		return false
	}
	*cs = append((*cs)[:i], (*cs)[i+1:]...)
	return true
}

func (cs Countries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(c.Code)
		if err != nil {
			return nil, err
		}
		v, err := marshalNoEscape(c.CountryID)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (cs *Countries) UnmarshalJSON(data []byte) error {
	*cs = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("countries: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		code, ok := tok.(string)
		if !ok {
			return fmt.Errorf("countries: bad key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		switch x := v.(type) {
		case string:
			cs.Add(code, x)
		case json.Number:
			cs.Add(code, x.String())
		default:
			return fmt.Errorf("countries: bad value for %q", code)
		}
	}
	_, err = dec.Token()
	return err
}

func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// StatusDocument is the single record shared by the chat handlers and the
// purchase loop. Every writer saves the whole document; last write wins.
type StatusDocument struct {
	Status    RunStatus   `json:"status,omitempty"`
	Key       string      `json:"key,omitempty"`
	Countries Countries   `json:"countries"`
	Admin     AdminCursor `json:"admin"`
}

func NewStatusDocument() *StatusDocument {
	return &StatusDocument{Countries: Countries{}}
}

func (d *StatusDocument) HasKey() bool { return strings.TrimSpace(d.Key) != "" }

func (d *StatusDocument) Clone() *StatusDocument {
	cp := *d
	cp.Countries = append(Countries{}, d.Countries...)
	return &cp
}
