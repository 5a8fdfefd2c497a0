package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/optract/optract/types"
)

// Registry method names.
const (
	methodBlockNo       = "getBlockNo"
	methodBlockInfo     = "getBlockInfo"
	methodRoundInfo     = "queryOpRoundInfo"
	methodRoundLottery  = "queryOpRoundLottery"
	methodRoundResult   = "queryOpRoundResult"
	methodRoundProgress = "queryOpRoundProgress"
)

// RegistryABI is the read-only subset of the block registry interface.
const RegistryABI = `[
{"type":"function","name":"getBlockNo","stateMutability":"view","inputs":[],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getBlockInfo","stateMutability":"view",
 "inputs":[{"name":"_sblockNo","type":"uint256"}],
 "outputs":[{"name":"ethBlockNo","type":"uint256"},{"name":"merkleRoot","type":"bytes32"},
  {"name":"ipfsAddr","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"aidData","type":"bytes32"}]},
{"type":"function","name":"queryOpRoundInfo","stateMutability":"view","inputs":[],
 "outputs":[{"name":"opRound","type":"uint256"},{"name":"id","type":"bytes32"},
  {"name":"blockStart","type":"uint256"},{"name":"blockEnd","type":"uint256"}]},
{"type":"function","name":"queryOpRoundLottery","stateMutability":"view",
 "inputs":[{"name":"_opRound","type":"uint256"}],
 "outputs":[{"name":"lottery","type":"uint256"},{"name":"winNumber","type":"bytes32"}]},
{"type":"function","name":"queryOpRoundResult","stateMutability":"view",
 "inputs":[{"name":"_opRound","type":"uint256"}],
 "outputs":[{"name":"id","type":"bytes32"},{"name":"opRound","type":"uint256"},
  {"name":"blockStart","type":"uint256"},{"name":"minSuccessRate","type":"uint256"},
  {"name":"successRateDB","type":"bytes32"},{"name":"finalListIPFS","type":"bytes32"}]},
{"type":"function","name":"queryOpRoundProgress","stateMutability":"view","inputs":[],
 "outputs":[{"name":"opRound","type":"uint256"},{"name":"id","type":"bytes32"},
  {"name":"voteCount","type":"uint256"},{"name":"claimCount","type":"uint256"}]}
]`

var registryABI = mustParseABI(RegistryABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

func toUint(v interface{}) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected %T, want uint256", v)
	}
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s overflows uint64", b)
	}
	return b.Uint64(), nil
}

func toHash(v interface{}) (types.Hash, error) {
	b, ok := v.([32]byte)
	if !ok {
		return types.Hash{}, fmt.Errorf("unexpected %T, want bytes32", v)
	}
	return common.Hash(b), nil
}

// outputs walks an unpacked result, keeping the first conversion error.
type outputs struct {
	vals []interface{}
	err  error
}

func (o *outputs) uint(i int) uint64 {
	if o.err != nil {
		return 0
	}
	if i >= len(o.vals) {
		o.err = fmt.Errorf("missing output %d", i)
		return 0
	}
	u, err := toUint(o.vals[i])
	o.err = err
	return u
}

func (o *outputs) hash(i int) types.Hash {
	if o.err != nil {
		return types.Hash{}
	}
	if i >= len(o.vals) {
		o.err = fmt.Errorf("missing output %d", i)
		return types.Hash{}
	}
	h, err := toHash(o.vals[i])
	o.err = err
	return h
}

func decodeRoundInfo(vals []interface{}) (RoundInfo, error) {
	o := &outputs{vals: vals}
	info := RoundInfo{
		Round:    o.uint(0),
		OID:      o.hash(1),
		Start:    o.uint(2),
		Deadline: o.uint(3),
	}
	return info, o.err
}

func decodeLottery(vals []interface{}) (Lottery, error) {
	o := &outputs{vals: vals}
	l := Lottery{Draw: o.uint(0), WinNumber: o.hash(1)}
	return l, o.err
}

func decodeRoundResults(round uint64, vals []interface{}) (RoundResults, error) {
	o := &outputs{vals: vals}
	res := RoundResults{
		Round:            round,
		MinSuccessRate:   o.uint(3),
		SuccessRateTable: o.hash(4),
		FinalistList:     o.hash(5),
	}
	return res, o.err
}

func decodeRoundProgress(vals []interface{}) (RoundProgress, error) {
	o := &outputs{vals: vals}
	p := RoundProgress{
		Round:  o.uint(0),
		OID:    o.hash(1),
		Votes:  o.uint(2),
		Claims: o.uint(3),
	}
	return p, o.err
}

func decodeBlockInfo(blockNo uint64, vals []interface{}) (BlockInfo, error) {
	o := &outputs{vals: vals}
	info := BlockInfo{
		BlockNo:    blockNo,
		EthBlockNo: o.uint(0),
		MerkleRoot: o.hash(1),
		BlockData:  o.hash(2),
		Timestamp:  o.uint(3),
		AIDData:    o.hash(4),
	}
	return info, o.err
}
