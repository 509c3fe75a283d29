package sanitize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var leadingIntRe = regexp.MustCompile(`-?\d+`)

// Int decodes from a JSON number or from the first integer found in a
// string ("3", "3-4 stages"). Anything else decodes as 0 without error.
type Int int

func (i *Int) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*i = Int(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if m := leadingIntRe.FindString(s); m != "" {
			n, _ := strconv.Atoi(m)
			*i = Int(n)
			return nil
		}
	}
	*i = 0
	return nil
}

var leadingFloatRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Float decodes from a JSON number or from the first number found in a
// string ("0.85", "about 7.5/10"). Anything else decodes as 0.
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	var x float64
	if err := json.Unmarshal(b, &x); err == nil {
		*f = Float(x)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if m := leadingFloatRe.FindString(s); m != "" {
			x, _ = strconv.ParseFloat(m, 64)
			*f = Float(x)
			return nil
		}
	}
	*f = 0
	return nil
}

// Bool decodes from a JSON boolean or a "true"/"yes"/"false"/"no" string.
// Set records whether the field was present at all.
type Bool struct {
	Value bool
	Set   bool
}

func (v *Bool) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var x bool
	if err := json.Unmarshal(b, &x); err == nil {
		*v = Bool{Value: x, Set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			*v = Bool{Value: true, Set: true}
		case "false", "no", "n", "0":
			*v = Bool{Value: false, Set: true}
		}
	}
	return nil
}

func (v Bool) MarshalJSON() ([]byte, error) {
	if !v.Set {
		return []byte("null"), nil
	}
	return json.Marshal(v.Value)
}

// Or returns the decoded value, or def when the field was absent.
func (v Bool) Or(def bool) bool {
	if !v.Set {
		return def
	}
	return v.Value
}
