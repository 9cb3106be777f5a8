package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

func keccak(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// CreateAddress derives the address of the contract deployed by sender at
// the given nonce (keccak256(rlp([sender, nonce]))[12:]).
func CreateAddress(sender common.Address, nonce uint64) common.Address {
	data, _ := rlp.EncodeToBytes([]interface{}{sender, nonce})
	return common.BytesToAddress(keccak(data)[12:])
}

// AccountFromName derives a stable account address for a named participant.
func AccountFromName(name string) common.Address {
	return common.BytesToAddress(keccak([]byte("account:"), []byte(strings.ToLower(name)))[12:])
}

// Key joins parts into a state key. Addresses are rendered as lowercase hex.
func Key(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		switch v := p.(type) {
		case common.Address:
			fmt.Fprintf(&b, "%x", v[:])
		case string:
			b.WriteString(v)
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}
