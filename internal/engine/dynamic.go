package engine

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/drblury/connector/internal/runtime/jsoncodec"
)

// MaxSequenceGap is how far past its current length a setter may grow a
// sequence that declares no max_length.
const MaxSequenceGap = 1 << 16

// DynamicData holds one value of a schema. Scalars are stored as bool,
// string, int64, uint64 or float64; nested structs as *DynamicData and
// sequences as []any.
//
// Setters never fail: a value that does not fit the addressed member is
// dropped and reported through the boolean result. Getters return the type
// default for anything that cannot be answered.
type DynamicData struct {
	schema *Schema
	values map[string]any
}

// NewDynamicData returns a value of schema with every member at its default.
func NewDynamicData(schema *Schema) *DynamicData {
	d := &DynamicData{schema: schema, values: make(map[string]any, len(schema.Members))}
	d.Clear()
	return d
}

// Schema returns the type of the value.
func (d *DynamicData) Schema() *Schema { return d.schema }

// Clear resets every member to its type default.
func (d *DynamicData) Clear() {
	for _, m := range d.schema.Members {
		if m.Sequence {
			d.values[m.Name] = []any{}
			continue
		}
		d.values[m.Name] = elementDefault(m)
	}
}

func elementDefault(m *Member) any {
	switch m.Kind {
	case KindBool:
		return false
	case KindString:
		return ""
	case KindInt, KindEnum:
		return int64(0)
	case KindUint:
		return uint64(0)
	case KindFloat:
		return float64(0)
	case KindStruct:
		return NewDynamicData(m.Type)
	default:
		return nil
	}
}

// slot is one addressable scalar location.
type slot struct {
	member *Member
	get    func() any
	set    func(any)
}

// resolve walks a path such as "inner.z" or "list[3]" down to a scalar.
// With grow set, sequences are extended with defaults up to the index.
func (d *DynamicData) resolve(path string, grow bool) (slot, bool) {
	segs, ok := parsePath(path)
	if !ok {
		return slot{}, false
	}
	cur := d
	for i, seg := range segs {
		m, ok := cur.schema.Member(seg.name)
		if !ok {
			return slot{}, false
		}
		last := i == len(segs)-1
		holder := cur

		if m.Sequence {
			if seg.index < 0 {
				return slot{}, false
			}
			seq := holder.values[m.Name].([]any)
			if seg.index >= len(seq) {
				if !grow || (m.MaxLength > 0 && seg.index >= m.MaxLength) {
					return slot{}, false
				}
				if m.MaxLength <= 0 && seg.index-len(seq) >= MaxSequenceGap {
					return slot{}, false
				}
				for len(seq) <= seg.index {
					seq = append(seq, elementDefault(m))
				}
				holder.values[m.Name] = seq
			}
			idx := seg.index
			if last {
				if m.Kind == KindStruct {
					return slot{}, false
				}
				return slot{
					member: m,
					get:    func() any { return seq[idx] },
					set:    func(v any) { seq[idx] = v },
				}, true
			}
			if m.Kind != KindStruct {
				return slot{}, false
			}
			cur = seq[idx].(*DynamicData)
			continue
		}

		if seg.index >= 0 {
			return slot{}, false
		}
		if last {
			if m.Kind == KindStruct {
				return slot{}, false
			}
			name := m.Name
			return slot{
				member: m,
				get:    func() any { return holder.values[name] },
				set:    func(v any) { holder.values[name] = v },
			}, true
		}
		if m.Kind != KindStruct {
			return slot{}, false
		}
		cur = holder.values[m.Name].(*DynamicData)
	}
	return slot{}, false
}

type segment struct {
	name  string
	index int
}

func parsePath(path string) ([]segment, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg := segment{name: part, index: -1}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, false
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, false
			}
			seg.name, seg.index = part[:open], idx
		}
		if seg.name == "" {
			return nil, false
		}
		segs = append(segs, seg)
	}
	return segs, true
}

// SetNumber stores v into a numeric or boolean member.
func (d *DynamicData) SetNumber(path string, v float64) bool {
	s, ok := d.resolve(path, true)
	if !ok {
		return false
	}
	val, ok := coerceNumber(s.member, v)
	if ok {
		s.set(val)
	}
	return ok
}

// SetBool stores b into a boolean member, or 1/0 into a numeric one.
func (d *DynamicData) SetBool(path string, b bool) bool {
	s, ok := d.resolve(path, true)
	if !ok {
		return false
	}
	val, ok := coerceBool(s.member, b)
	if ok {
		s.set(val)
	}
	return ok
}

// SetString stores str into a string member. Numeric and boolean members
// accept strings that parse as their type.
func (d *DynamicData) SetString(path string, str string) bool {
	s, ok := d.resolve(path, true)
	if !ok {
		return false
	}
	val, ok := coerceString(s.member, str)
	if ok {
		s.set(val)
	}
	return ok
}

// Number reads a numeric member as float64.
func (d *DynamicData) Number(path string) (float64, bool) {
	s, ok := d.resolve(path, false)
	if !ok {
		return 0, false
	}
	switch v := s.get().(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Bool reads a boolean member.
func (d *DynamicData) Bool(path string) (bool, bool) {
	s, ok := d.resolve(path, false)
	if !ok {
		return false, false
	}
	b, ok := s.get().(bool)
	return b, ok
}

// String reads a string member.
func (d *DynamicData) String(path string) (string, bool) {
	s, ok := d.resolve(path, false)
	if !ok {
		return "", false
	}
	str, ok := s.get().(string)
	return str, ok
}

func coerceNumber(m *Member, v float64) (any, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	switch m.Kind {
	case KindInt, KindEnum:
		return clampInt(m.Bits, math.Trunc(v)), true
	case KindUint:
		if v < 0 {
			return nil, false
		}
		return clampUint(m.Bits, math.Trunc(v)), true
	case KindFloat:
		if m.Bits == 32 {
			return float64(float32(v)), true
		}
		return v, true
	case KindBool:
		return v != 0, true
	default:
		return nil, false
	}
}

func coerceBool(m *Member, b bool) (any, bool) {
	if m.Kind == KindBool {
		return b, true
	}
	if m.Kind.numeric() {
		if b {
			return coerceNumber(m, 1)
		}
		return coerceNumber(m, 0)
	}
	return nil, false
}

func coerceString(m *Member, s string) (any, bool) {
	switch {
	case m.Kind == KindString:
		return truncate(s, m.MaxLength), true
	case m.Kind == KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, false
		}
		return b, true
	case m.Kind.numeric():
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		return coerceNumber(m, f)
	default:
		return nil, false
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// ClampInt truncates v to a signed integer of the given width, saturating at
// its bounds.
func ClampInt(bits int, v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	return clampInt(bits, math.Trunc(v))
}

// ClampUint is ClampInt for unsigned widths; negative values yield 0.
func ClampUint(bits int, v float64) uint64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return clampUint(bits, math.Trunc(v))
}

// float64(math.MaxInt64) is 2^63 and float64(math.MaxUint64) is 2^64; neither
// converts back, so bounds are compared as floats first.
func clampInt(bits int, v float64) int64 {
	lo, hi := intRange(bits)
	switch {
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func clampUint(bits int, v float64) uint64 {
	hi := uintMax(bits)
	if v >= float64(hi) {
		return hi
	}
	return uint64(v)
}

func intRange(bits int) (int64, int64) {
	switch bits {
	case 8:
		return math.MinInt8, math.MaxInt8
	case 16:
		return math.MinInt16, math.MaxInt16
	case 32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func uintMax(bits int) uint64 {
	switch bits {
	case 8:
		return math.MaxUint8
	case 16:
		return math.MaxUint16
	case 32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

// Merge copies the members of obj into d. Fields that are unknown, or whose
// JSON type does not fit the member, are left untouched and returned by path.
// Numbers are accepted by every numeric member and truncated as needed.
func (d *DynamicData) Merge(obj map[string]any) []string {
	var ignored []string
	d.merge("", obj, &ignored)
	return ignored
}

func (d *DynamicData) merge(prefix string, obj map[string]any, ignored *[]string) {
	for name, raw := range obj {
		path := prefix + name
		m, ok := d.schema.Member(name)
		if !ok {
			*ignored = append(*ignored, path)
			continue
		}
		if m.Sequence {
			arr, ok := raw.([]any)
			if !ok {
				*ignored = append(*ignored, path)
				continue
			}
			if m.MaxLength > 0 && len(arr) > m.MaxLength {
				*ignored = append(*ignored, path+"["+strconv.Itoa(m.MaxLength)+":]")
				arr = arr[:m.MaxLength]
			}
			seq := make([]any, len(arr))
			for i, el := range arr {
				elemPath := path + "[" + strconv.Itoa(i) + "]"
				seq[i] = elementDefault(m)
				if m.Kind == KindStruct {
					if sub, ok := el.(map[string]any); ok {
						seq[i].(*DynamicData).merge(elemPath+".", sub, ignored)
					} else {
						*ignored = append(*ignored, elemPath)
					}
					continue
				}
				if v, ok := coerceJSON(m, el); ok {
					seq[i] = v
				} else {
					*ignored = append(*ignored, elemPath)
				}
			}
			d.values[name] = seq
			continue
		}
		if m.Kind == KindStruct {
			sub, ok := raw.(map[string]any)
			if !ok {
				*ignored = append(*ignored, path)
				continue
			}
			d.values[name].(*DynamicData).merge(path+".", sub, ignored)
			continue
		}
		if v, ok := coerceJSON(m, raw); ok {
			d.values[name] = v
		} else {
			*ignored = append(*ignored, path)
		}
	}
}

func coerceJSON(m *Member, raw any) (any, bool) {
	switch v := raw.(type) {
	case float64:
		if m.Kind.numeric() {
			return coerceNumber(m, v)
		}
	case string:
		if m.Kind == KindString {
			return truncate(v, m.MaxLength), true
		}
	case bool:
		if m.Kind == KindBool {
			return v, true
		}
	}
	return nil, false
}

// ToMap renders the value as a generic JSON object with every member present.
func (d *DynamicData) ToMap() map[string]any {
	out := make(map[string]any, len(d.values))
	for _, m := range d.schema.Members {
		out[m.Name] = exportValue(d.values[m.Name])
	}
	return out
}

// KeyMap renders only the key members.
func (d *DynamicData) KeyMap() map[string]any {
	out := map[string]any{}
	for _, m := range d.schema.Members {
		if m.Key {
			out[m.Name] = exportValue(d.values[m.Name])
		}
	}
	return out
}

func exportValue(v any) any {
	switch val := v.(type) {
	case *DynamicData:
		return val.ToMap()
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = exportValue(el)
		}
		return out
	default:
		return val
	}
}

// MarshalJSON encodes the value with every member present.
func (d *DynamicData) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(d.ToMap())
}
