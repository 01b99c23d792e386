package command

import (
	"github.com/tidwall/gjson"
)

// FieldType constrains the JSON shape of one argument.
type FieldType int

const (
	// TString accepts a JSON string.
	TString FieldType = iota
	// TInt accepts a JSON number with no fractional part.
	TInt
	// TBool accepts a JSON boolean.
	TBool
	// TList accepts a JSON array.
	TList
)

func (t FieldType) String() string {
	switch t {
	case TString:
		return "string"
	case TInt:
		return "integer"
	case TBool:
		return "boolean"
	case TList:
		return "array"
	default:
		return "value"
	}
}

// Field describes one argument a command accepts.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the full argument contract of a command. Validation runs before
// the session is touched; unknown extra keys are tolerated.
type Schema []Field

// Validate checks raw against the schema and returns the parsed Args on
// success.
func (s Schema) Validate(command string, raw []byte) (Args, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		return Args{}, invalidArgs(command, "arguments are not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Args{}, invalidArgs(command, "arguments must be a JSON object")
	}

	for _, f := range s {
		v := parsed.Get(f.Name)
		if !v.Exists() || v.Type == gjson.Null {
			if f.Required {
				return Args{}, invalidArgs(command, "missing required argument %q", f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			return Args{}, invalidArgs(command, "argument %q must be a %s", f.Name, f.Type)
		}
		// Every integer argument in the command surface is a position or
		// a count; a negative value is out of range before it reaches the
		// analyzer.
		if f.Type == TInt && v.Int() < 0 {
			return Args{}, invalidArgs(command, "argument %q must not be negative", f.Name)
		}
	}
	return Args{raw: raw}, nil
}

func typeMatches(t FieldType, v gjson.Result) bool {
	switch t {
	case TString:
		return v.Type == gjson.String
	case TInt:
		return v.Type == gjson.Number && v.Num == float64(int64(v.Num))
	case TBool:
		return v.IsBool()
	case TList:
		return v.IsArray()
	default:
		return false
	}
}

// Args is a validated argument set. Accessors assume the schema already
// checked presence and types of required fields.
type Args struct {
	raw []byte
}

// Str returns a string argument, "" if absent.
func (a Args) Str(name string) string {
	return gjson.GetBytes(a.raw, name).String()
}

// Int returns an integer argument, 0 if absent.
func (a Args) Int(name string) int {
	return int(gjson.GetBytes(a.raw, name).Int())
}

// Bool returns a boolean argument, false if absent.
func (a Args) Bool(name string) bool {
	return gjson.GetBytes(a.raw, name).Bool()
}

// Has reports whether the argument is present and non-null.
func (a Args) Has(name string) bool {
	v := gjson.GetBytes(a.raw, name)
	return v.Exists() && v.Type != gjson.Null
}

// Strings returns a list argument's elements rendered as strings.
func (a Args) Strings(name string) []string {
	items := gjson.GetBytes(a.raw, name).Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

// List returns a list argument's raw elements for commands with structured
// list items.
func (a Args) List(name string) []gjson.Result {
	return gjson.GetBytes(a.raw, name).Array()
}
