package engine

import (
	"fmt"

	"github.com/drblury/connector/internal/runtime/config"
)

// Kind is the storage class of a member.
type Kind int

const (
	KindBool Kind = iota + 1
	KindString
	KindInt
	KindUint
	KindFloat
	KindEnum
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindStruct:
		return "struct"
	default:
		return "invalid"
	}
}

func (k Kind) numeric() bool {
	return k == KindInt || k == KindUint || k == KindFloat || k == KindEnum
}

// Member is a compiled struct member.
type Member struct {
	Name      string
	Kind      Kind
	Bits      int
	Key       bool
	Sequence  bool
	MaxLength int
	// Type is the nested schema of struct members.
	Type *Schema
}

// Schema is a compiled struct type.
type Schema struct {
	Name    string
	Members []*Member
	byName  map[string]*Member
}

// Member looks up a member by name.
func (s *Schema) Member(name string) (*Member, bool) {
	m, ok := s.byName[name]
	return m, ok
}

var primitives = map[string]struct {
	kind Kind
	bits int
}{
	"bool":    {KindBool, 0},
	"string":  {KindString, 0},
	"enum":    {KindEnum, 32},
	"int8":    {KindInt, 8},
	"int16":   {KindInt, 16},
	"int32":   {KindInt, 32},
	"int64":   {KindInt, 64},
	"uint8":   {KindUint, 8},
	"uint16":  {KindUint, 16},
	"uint32":  {KindUint, 32},
	"uint64":  {KindUint, 64},
	"float32": {KindFloat, 32},
	"float64": {KindFloat, 64},
}

// CompileTypes turns validated type declarations into schemas. Every
// declared type gets a schema, nested references share them.
func CompileTypes(types map[string]config.TypeConfig) (map[string]*Schema, error) {
	schemas := make(map[string]*Schema, len(types))
	for name := range types {
		schemas[name] = &Schema{Name: name, byName: map[string]*Member{}}
	}
	for name, decl := range types {
		s := schemas[name]
		for _, m := range decl.Members {
			member := &Member{
				Name:      m.Name,
				Key:       m.Key,
				Sequence:  m.Sequence,
				MaxLength: m.MaxLength,
			}
			if p, ok := primitives[m.Type]; ok {
				member.Kind, member.Bits = p.kind, p.bits
			} else if nested, ok := schemas[m.Type]; ok {
				member.Kind, member.Type = KindStruct, nested
			} else {
				return nil, fmt.Errorf("type %s: member %s has unknown type %q", name, m.Name, m.Type)
			}
			s.Members = append(s.Members, member)
			s.byName[m.Name] = member
		}
	}
	return schemas, nil
}
