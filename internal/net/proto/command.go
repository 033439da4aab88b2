package proto

import (
	"lockstep/client/internal/net/packet"
	"lockstep/client/internal/sim"
)

func putCommand(p *packet.Packet, cmd sim.Command) {
	p.PutUint8(uint8(cmd.Company))
	p.PutUint32(uint32(cmd.Action))
	p.PutUint32(cmd.Tile)
	p.PutUint32(cmd.P1)
	p.PutUint32(cmd.P2)
	p.PutUint64(cmd.P3)
	p.PutString(cmd.Text)
}

func readCommand(p *packet.Packet) sim.Command {
	return sim.Command{
		Company: sim.CompanyID(p.Uint8()),
		Action:  sim.Action(p.Uint32()),
		Tile:    p.Uint32(),
		P1:      p.Uint32(),
		P2:      p.Uint32(),
		P3:      p.Uint64(),
		Text:    p.Text(),
	}
}
