package coordinator

import (
	"log"

	"github.com/kindredchat/kindred/internal/matching"
	"github.com/kindredchat/kindred/internal/protocol"
)

func partnerOf(e matching.Entry) protocol.Partner {
	return protocol.Partner{
		UserID:    e.UserID,
		Username:  e.Username,
		Interests: e.Interests,
	}
}

func (c *Coordinator) sendMatchFound(userID, matchID string, partner matching.Entry) {
	data, err := protocol.NewServerMessage(protocol.TypeMatchFound, protocol.MatchFoundMsg{
		MatchID:    matchID,
		Partner:    partnerOf(partner),
		PromptUser: true,
	})
	if err != nil {
		log.Printf("[coordinator] encode match-found: %v", err)
		return
	}
	c.sender.Send(userID, data)
}

func (c *Coordinator) sendMatchConfirmed(userID, sessionID string, partner matching.Entry) {
	data, err := protocol.NewServerMessage(protocol.TypeMatchConfirmed, protocol.MatchConfirmedMsg{
		SessionID: sessionID,
		Partner:   partnerOf(partner),
	})
	if err != nil {
		log.Printf("[coordinator] encode match-confirmed: %v", err)
		return
	}
	c.sender.Send(userID, data)
}

func (c *Coordinator) sendMatchDead(userID, matchID string, expired bool) {
	typ := protocol.TypeMatchRejected
	var payload interface{} = protocol.MatchRejectedMsg{MatchID: matchID}
	if expired {
		typ = protocol.TypeMatchExpired
		payload = protocol.MatchExpiredMsg{MatchID: matchID}
	}
	data, err := protocol.NewServerMessage(typ, payload)
	if err != nil {
		log.Printf("[coordinator] encode %s: %v", typ, err)
		return
	}
	c.sender.Send(userID, data)
}
