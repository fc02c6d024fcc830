package config

import (
	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// Participant is a participant configuration with every reference resolved.
type Participant struct {
	Name      string
	Domain    string
	DomainID  int
	Transport TransportConfig
	Types     map[string]TypeConfig
	Writers   []Endpoint
	Readers   []Endpoint
}

// Endpoint is a resolved writer or reader.
type Endpoint struct {
	// Name is the qualified "Publisher::Writer" or "Subscriber::Reader".
	Name         string
	Topic        string
	TypeName     string
	HistoryDepth int
}

// ResolveParticipant looks up "Library::Participant" and resolves its domain,
// transport and endpoints.
func (d *Document) ResolveParticipant(qualified string) (*Participant, error) {
	lib, name, err := SplitName(qualified)
	if err != nil {
		return nil, err
	}
	p, ok := d.ParticipantLibraries[lib][name]
	if !ok {
		return nil, errspkg.Wrap(errspkg.ErrEntityNotFound, "participant", qualified)
	}
	dom, err := d.domain(p.Domain)
	if err != nil {
		return nil, err
	}

	resolved := &Participant{
		Name:      qualified,
		Domain:    p.Domain,
		DomainID:  dom.DomainID,
		Transport: dom.Transport,
		Types:     d.Types,
	}
	resolved.Transport.DomainID = dom.DomainID
	resolved.Transport.ClientName = qualified

	endpoint := func(group, entity string, ep EndpointConfig) Endpoint {
		return Endpoint{
			Name:         group + Separator + entity,
			Topic:        ep.Topic,
			TypeName:     dom.Topics[ep.Topic].Type,
			HistoryDepth: ep.HistoryDepth,
		}
	}
	for _, pub := range sortedKeys(p.Publishers) {
		for _, w := range sortedKeys(p.Publishers[pub].Writers) {
			resolved.Writers = append(resolved.Writers, endpoint(pub, w, p.Publishers[pub].Writers[w]))
		}
	}
	for _, sub := range sortedKeys(p.Subscribers) {
		for _, r := range sortedKeys(p.Subscribers[sub].Readers) {
			resolved.Readers = append(resolved.Readers, endpoint(sub, r, p.Subscribers[sub].Readers[r]))
		}
	}
	return resolved, nil
}

// ResolveWriter finds a writer of the participant by its qualified name.
func (p *Participant) ResolveWriter(qualified string) (Endpoint, error) {
	return find(p.Writers, "output", qualified)
}

// ResolveReader finds a reader of the participant by its qualified name.
func (p *Participant) ResolveReader(qualified string) (Endpoint, error) {
	return find(p.Readers, "input", qualified)
}

func find(endpoints []Endpoint, kind, qualified string) (Endpoint, error) {
	if _, _, err := SplitName(qualified); err != nil {
		return Endpoint{}, err
	}
	for _, ep := range endpoints {
		if ep.Name == qualified {
			return ep, nil
		}
	}
	return Endpoint{}, errspkg.Wrap(errspkg.ErrEntityNotFound, kind, qualified)
}
