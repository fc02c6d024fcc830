// Package config loads the YAML (or TOML) document that describes the types,
// domains and participants a connector can be created from.
//
// A document has three sections:
//
//	types:                 named struct types and their members
//	domain_libraries:      Library -> Domain -> {domain_id, transport, topics}
//	participant_libraries: Library -> Participant -> {domain, publishers, subscribers}
//
// Participants are addressed as "Library::Participant"; their outputs and
// inputs as "Publisher::Writer" and "Subscriber::Reader".
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// InlinePrefix marks a configuration source that carries the document itself
// instead of a file path.
const InlinePrefix = "str://"

// Separator joins the two halves of a qualified entity name.
const Separator = "::"

// Document is a parsed configuration source.
type Document struct {
	Types                map[string]TypeConfig                   `yaml:"types" toml:"types"`
	DomainLibraries      map[string]map[string]DomainConfig      `yaml:"domain_libraries" toml:"domain_libraries"`
	ParticipantLibraries map[string]map[string]ParticipantConfig `yaml:"participant_libraries" toml:"participant_libraries"`
}

// TypeConfig declares a struct type.
type TypeConfig struct {
	Members []MemberConfig `yaml:"members" toml:"members"`
}

// MemberConfig declares one member of a struct type. Type is either a
// primitive name or the name of another declared type.
type MemberConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Type      string `yaml:"type" toml:"type"`
	Key       bool   `yaml:"key" toml:"key"`
	Sequence  bool   `yaml:"sequence" toml:"sequence"`
	MaxLength int    `yaml:"max_length" toml:"max_length"`
}

// DomainConfig binds a domain id to a transport and a set of topics.
type DomainConfig struct {
	DomainID  int                    `yaml:"domain_id" toml:"domain_id"`
	Transport TransportConfig        `yaml:"transport" toml:"transport"`
	Topics    map[string]TopicConfig `yaml:"topics" toml:"topics"`
}

// TopicConfig names the type published on a topic.
type TopicConfig struct {
	Type string `yaml:"type" toml:"type"`
}

// ParticipantConfig declares the outputs and inputs of one participant.
type ParticipantConfig struct {
	Domain      string                      `yaml:"domain" toml:"domain"`
	Publishers  map[string]PublisherConfig  `yaml:"publishers" toml:"publishers"`
	Subscribers map[string]SubscriberConfig `yaml:"subscribers" toml:"subscribers"`
}

type PublisherConfig struct {
	Writers map[string]EndpointConfig `yaml:"writers" toml:"writers"`
}

type SubscriberConfig struct {
	Readers map[string]EndpointConfig `yaml:"readers" toml:"readers"`
}

// EndpointConfig configures a single writer or reader.
type EndpointConfig struct {
	Topic string `yaml:"topic" toml:"topic"`
	// HistoryDepth bounds the number of unconsumed samples a reader keeps.
	// Zero keeps everything.
	HistoryDepth int `yaml:"history_depth" toml:"history_depth"`
}

// PrimitiveTypes lists the member types understood without a declaration.
var PrimitiveTypes = []string{
	"bool", "string", "enum",
	"int8", "int16", "int32", "int64",
	"uint8", "uint16", "uint32", "uint64",
	"float32", "float64",
}

// IsPrimitive reports whether name is one of PrimitiveTypes.
func IsPrimitive(name string) bool {
	for _, p := range PrimitiveTypes {
		if p == name {
			return true
		}
	}
	return false
}

// Load reads a configuration source. The source is a file path, or an
// inline YAML document prefixed with InlinePrefix. Files ending in ".toml"
// are decoded as TOML.
func Load(source string) (*Document, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errspkg.ErrConfigRequired
	}
	if inline, ok := strings.CutPrefix(source, InlinePrefix); ok {
		return Parse([]byte(inline))
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read configuration %q: %w", source, err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(source), ".toml") {
		parse = ParseTOML
	}
	doc, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration %q: %w", source, err)
	}
	return doc, nil
}

// Parse decodes and validates a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseTOML decodes and validates a TOML document. Unknown keys are rejected.
func ParseTOML(data []byte) (*Document, error) {
	var doc Document
	meta, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode configuration: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks cross references between the sections. All problems are
// reported together.
func (d *Document) Validate() error {
	if d == nil {
		return errspkg.ErrConfigRequired
	}
	var errs []error
	errs = append(errs, d.validateTypes()...)
	errs = append(errs, d.validateDomains()...)
	errs = append(errs, d.validateParticipants()...)
	if len(errs) == 0 {
		return nil
	}
	return errspkg.ConfigValidationError{Err: errors.Join(errs...)}
}

func (d *Document) validateTypes() []error {
	var errs []error
	for _, name := range sortedKeys(d.Types) {
		seen := map[string]bool{}
		for i, m := range d.Types[name].Members {
			switch {
			case m.Name == "":
				errs = append(errs, fmt.Errorf("types.%s: member %d has no name", name, i))
			case seen[m.Name]:
				errs = append(errs, fmt.Errorf("types.%s: duplicate member %q", name, m.Name))
			}
			seen[m.Name] = true
			if !IsPrimitive(m.Type) {
				if _, ok := d.Types[m.Type]; !ok {
					errs = append(errs, fmt.Errorf("types.%s.%s: unknown type %q", name, m.Name, m.Type))
				}
			}
			if m.MaxLength < 0 {
				errs = append(errs, fmt.Errorf("types.%s.%s: max_length cannot be negative", name, m.Name))
			}
		}
		if d.hasCycle(name, map[string]bool{}) {
			errs = append(errs, fmt.Errorf("types.%s: recursive type", name))
		}
	}
	return errs
}

func (d *Document) hasCycle(name string, visiting map[string]bool) bool {
	if visiting[name] {
		return true
	}
	t, ok := d.Types[name]
	if !ok {
		return false
	}
	visiting[name] = true
	defer delete(visiting, name)
	for _, m := range t.Members {
		if !IsPrimitive(m.Type) && d.hasCycle(m.Type, visiting) {
			return true
		}
	}
	return false
}

func (d *Document) validateDomains() []error {
	var errs []error
	for _, lib := range sortedKeys(d.DomainLibraries) {
		for _, name := range sortedKeys(d.DomainLibraries[lib]) {
			dom := d.DomainLibraries[lib][name]
			path := lib + Separator + name
			if dom.DomainID < 0 {
				errs = append(errs, fmt.Errorf("domain %s: domain_id cannot be negative", path))
			}
			for _, topic := range sortedKeys(dom.Topics) {
				if _, ok := d.Types[dom.Topics[topic].Type]; !ok {
					errs = append(errs, fmt.Errorf("domain %s: topic %q uses unknown type %q", path, topic, dom.Topics[topic].Type))
				}
			}
			for _, err := range dom.Transport.validate() {
				errs = append(errs, fmt.Errorf("domain %s: %w", path, err))
			}
		}
	}
	return errs
}

func (d *Document) validateParticipants() []error {
	var errs []error
	for _, lib := range sortedKeys(d.ParticipantLibraries) {
		for _, name := range sortedKeys(d.ParticipantLibraries[lib]) {
			p := d.ParticipantLibraries[lib][name]
			path := lib + Separator + name
			dom, err := d.domain(p.Domain)
			if err != nil {
				errs = append(errs, fmt.Errorf("participant %s: %w", path, err))
				continue
			}
			check := func(kind, group, entity string, ep EndpointConfig) {
				if _, ok := dom.Topics[ep.Topic]; !ok {
					errs = append(errs, fmt.Errorf("participant %s: %s %s%s%s uses unknown topic %q", path, kind, group, Separator, entity, ep.Topic))
				}
				if ep.HistoryDepth < 0 {
					errs = append(errs, fmt.Errorf("participant %s: %s %s%s%s has negative history_depth", path, kind, group, Separator, entity))
				}
			}
			for _, pub := range sortedKeys(p.Publishers) {
				for _, w := range sortedKeys(p.Publishers[pub].Writers) {
					check("writer", pub, w, p.Publishers[pub].Writers[w])
				}
			}
			for _, sub := range sortedKeys(p.Subscribers) {
				for _, r := range sortedKeys(p.Subscribers[sub].Readers) {
					check("reader", sub, r, p.Subscribers[sub].Readers[r])
				}
			}
		}
	}
	return errs
}

func (d *Document) domain(qualified string) (DomainConfig, error) {
	lib, name, err := SplitName(qualified)
	if err != nil {
		return DomainConfig{}, err
	}
	dom, ok := d.DomainLibraries[lib][name]
	if !ok {
		return DomainConfig{}, errspkg.Wrap(errspkg.ErrEntityNotFound, "domain", qualified)
	}
	return dom, nil
}

// SplitName splits "Library::Name" into its two non-empty halves.
func SplitName(qualified string) (string, string, error) {
	left, right, ok := strings.Cut(qualified, Separator)
	if !ok || left == "" || right == "" || strings.Contains(right, Separator) {
		return "", "", errspkg.Wrap(errspkg.ErrEntityNotFound, "malformed name", qualified)
	}
	return left, right, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
