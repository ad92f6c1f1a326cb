package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer. This node is never
// added to its own list.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	if peer.Match(s.host) || peer.Host == "" {
		return false
	}
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer removes the peer from the known list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}
