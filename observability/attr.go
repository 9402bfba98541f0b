package observability

import (
	"encoding/hex"

	"go.opentelemetry.io/otel/attribute"
)

const TxHashKey attribute.Key = "tx.hash"
const ChainKey attribute.Key = "chain"
const StateKey attribute.Key = "state"
const NodeNameKey attribute.Key = "service.node.name" // ECS convention

func Round(round uint64) attribute.KeyValue {
	return attribute.Int64("round", int64(round)) /* #nosec G115 its unlikely that value of round exceeds int64 max value */
}

func TxHash(value []byte) attribute.KeyValue {
	return TxHashKey.String(hex.EncodeToString(value))
}

func Chain(name string) attribute.KeyValue {
	return ChainKey.String(name)
}

/*
ErrStatus returns attribute named "status" with value "ok" if the param
err is nil and "err" when it is not.
*/
func ErrStatus(err error) attribute.KeyValue {
	status := "ok"
	if err != nil {
		status = "err"
	}
	return attribute.String("status", status)
}
