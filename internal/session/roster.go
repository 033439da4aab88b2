package session

import (
	"sort"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
)

// Client is one entry of the server's client list.
type Client struct {
	ID        uint32
	Company   sim.CompanyID
	Name      string
	PublicKey string
}

type roster map[uint32]Client

func (r roster) apply(msg proto.Message) {
	switch m := msg.(type) {
	case *proto.ClientInfo:
		r[m.ClientID] = Client{ID: m.ClientID, Company: m.Company, Name: m.Name, PublicKey: m.PublicKey}
	case *proto.ServerJoin:
		if _, ok := r[m.ClientID]; !ok {
			r[m.ClientID] = Client{ID: m.ClientID, Company: sim.CompanySpectator}
		}
	case *proto.ServerMove:
		if c, ok := r[m.ClientID]; ok {
			c.Company = m.Company
			r[m.ClientID] = c
		}
	case *proto.ServerQuit:
		delete(r, m.ClientID)
	case *proto.ErrorQuit:
		delete(r, m.ClientID)
	}
}

// Clients lists known clients ordered by id.
func (s *Session) Clients() []Client {
	out := make([]Client, 0, len(s.roster))
	for _, c := range s.roster {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
