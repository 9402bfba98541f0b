package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrBindingIsNil = errors.New("proxy binding is nil")

/*
ProxyBinding is a registered correspondence between a proxy address on one
ledger and its counterpart on the other. A proxy binds to exactly one
counterpart, last registration wins on conflict.
*/
type ProxyBinding struct {
	_           struct{}       `cbor:",toarray"`
	Proxy       common.Address `json:"proxy"`
	Counterpart common.Address `json:"counterpart"`
}

func (x *ProxyBinding) IsValid() error {
	if x == nil {
		return ErrBindingIsNil
	}
	if x.Proxy == (common.Address{}) {
		return fmt.Errorf("proxy address is unassigned")
	}
	if x.Counterpart == (common.Address{}) {
		return fmt.Errorf("counterpart address is unassigned")
	}
	return nil
}

func (x *ProxyBinding) String() string {
	if x == nil {
		return "proxy binding is nil"
	}
	return fmt.Sprintf("%s->%s", x.Proxy.Hex(), x.Counterpart.Hex())
}

/*
Classification is the result of matching a transaction's call trace
against registered proxy bindings. Bindings lists the matches in the
order the proxies were first contacted.
*/
type Classification struct {
	IsCrossLedger bool
	Bindings      []ProxyBinding
}
