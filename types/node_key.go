package types

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creachadair/atomicfile"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	tmos "github.com/optract/optract/libs/os"
)

//------------------------------------------------------------------------------
// Persistent peer ID
// TODO: encrypt on disk

// NodeKey is the persistent gossip identity of the node.
type NodeKey struct {
	ID      peer.ID
	PrivKey crypto.PrivKey
}

type nodeKeyJSON struct {
	ID      string `json:"id"`
	PrivKey string `json:"priv_key"`
}

func (nk NodeKey) MarshalJSON() ([]byte, error) {
	raw, err := crypto.MarshalPrivateKey(nk.PrivKey)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeKeyJSON{
		ID:      nk.ID.Pretty(),
		PrivKey: crypto.ConfigEncodeKey(raw),
	})
}

func (nk *NodeKey) UnmarshalJSON(bz []byte) error {
	var v nodeKeyJSON
	if err := json.Unmarshal(bz, &v); err != nil {
		return err
	}
	raw, err := crypto.ConfigDecodeKey(v.PrivKey)
	if err != nil {
		return fmt.Errorf("decoding priv_key: %w", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return fmt.Errorf("decoding priv_key: %w", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return err
	}
	if v.ID != "" && v.ID != id.Pretty() {
		return fmt.Errorf("node key id %s does not match private key (%s)", v.ID, id)
	}
	nk.ID, nk.PrivKey = id, priv
	return nil
}

// PubKey returns the peer's PubKey
func (nk NodeKey) PubKey() crypto.PubKey {
	return nk.PrivKey.GetPublic()
}

// SaveAs persists the NodeKey to filePath, replacing any previous file
// atomically.
func (nk NodeKey) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(nk)
	if err != nil {
		return err
	}
	if err := tmos.EnsureDir(filepath.Dir(filePath), 0700); err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(filePath, bytes.NewReader(jsonBytes), 0600)
	return err
}

// LoadOrGenNodeKey attempts to load the NodeKey from the given filePath. If
// the file does not exist, it generates and saves a new NodeKey.
func LoadOrGenNodeKey(filePath string) (NodeKey, error) {
	if tmos.FileExists(filePath) {
		return LoadNodeKey(filePath)
	}

	nodeKey, err := GenNodeKey()
	if err != nil {
		return NodeKey{}, err
	}
	if err := nodeKey.SaveAs(filePath); err != nil {
		return NodeKey{}, err
	}
	return nodeKey, nil
}

// GenNodeKey generates a new Ed25519 node key.
func GenNodeKey() (NodeKey, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return NodeKey{}, err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return NodeKey{}, err
	}
	return NodeKey{ID: id, PrivKey: priv}, nil
}

// LoadNodeKey loads NodeKey located in filePath.
func LoadNodeKey(filePath string) (NodeKey, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return NodeKey{}, err
	}
	var nodeKey NodeKey
	if err := json.Unmarshal(jsonBytes, &nodeKey); err != nil {
		return NodeKey{}, fmt.Errorf("error reading node key from %v: %w", filePath, err)
	}
	return nodeKey, nil
}
