package peer_test

import (
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host3"}, {Host: "host1"}, {Host: "host2"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				if !ps.Add(peer) {
					t.Fatalf("Test %s:\tShould be able to add peer %s.", tst.name, peer)
				}
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add the same peer twice.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			if peers[0].Host != "host1" || peers[2].Host != "host3" {
				t.Fatalf("Test %s:\tShould get back the peers ordered by host: %v", tst.name, peers)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			ps.Remove(peer.New("host1"))
			if ps.Len() != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould be able to remove a peer.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}
