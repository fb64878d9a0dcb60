package protocol

import (
	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Options tunes sessions, transactions and queries. Nil fields are left to
// the server default.
type Options struct {
	Infer                    *bool
	TraceInference           *bool
	Explain                  *bool
	Parallel                 *bool
	Prefetch                 *bool
	BatchSize                *int32
	SessionIdleTimeoutMillis *int32
	TransactionTimeoutMillis *int32
}

const (
	optInferField              protowire.Number = 1
	optTraceInferenceField     protowire.Number = 2
	optExplainField            protowire.Number = 3
	optParallelField           protowire.Number = 4
	optPrefetchField           protowire.Number = 5
	optBatchSizeField          protowire.Number = 6
	optSessionIdleTimeoutField protowire.Number = 7
	optTransactionTimeoutField protowire.Number = 8
)

func Bool(v bool) *bool {
	return &v
}

func Int32(v int32) *int32 {
	return &v
}

// Validate rejects option values the server would refuse.
func (o *Options) Validate() error {
	if o == nil {
		return nil
	}
	if o.BatchSize != nil && *o.BatchSize < 1 {
		return clienterrors.NonPositiveBatchSize.New(*o.BatchSize)
	}
	return nil
}

func (o *Options) Marshal() ([]byte, error) {
	var b []byte
	if o == nil {
		return b, nil
	}
	for _, opt := range []struct {
		num protowire.Number
		v   *bool
	}{
		{optInferField, o.Infer},
		{optTraceInferenceField, o.TraceInference},
		{optExplainField, o.Explain},
		{optParallelField, o.Parallel},
		{optPrefetchField, o.Prefetch},
	} {
		if opt.v != nil {
			b = appendOptionalVarint(b, opt.num, protowire.EncodeBool(*opt.v))
		}
	}
	for _, opt := range []struct {
		num protowire.Number
		v   *int32
	}{
		{optBatchSizeField, o.BatchSize},
		{optSessionIdleTimeoutField, o.SessionIdleTimeoutMillis},
		{optTransactionTimeoutField, o.TransactionTimeoutMillis},
	} {
		if opt.v != nil {
			b = appendOptionalVarint(b, opt.num, int32Varint(*opt.v))
		}
	}
	return b, nil
}

func (o *Options) Unmarshal(b []byte) error {
	*o = Options{}
	return consumeFields(b, func(f field) error {
		if f.typ != protowire.VarintType {
			return nil
		}
		switch f.num {
		case optInferField:
			o.Infer = Bool(protowire.DecodeBool(f.varint))
		case optTraceInferenceField:
			o.TraceInference = Bool(protowire.DecodeBool(f.varint))
		case optExplainField:
			o.Explain = Bool(protowire.DecodeBool(f.varint))
		case optParallelField:
			o.Parallel = Bool(protowire.DecodeBool(f.varint))
		case optPrefetchField:
			o.Prefetch = Bool(protowire.DecodeBool(f.varint))
		case optBatchSizeField:
			o.BatchSize = Int32(varintInt32(f.varint))
		case optSessionIdleTimeoutField:
			o.SessionIdleTimeoutMillis = Int32(varintInt32(f.varint))
		case optTransactionTimeoutField:
			o.TransactionTimeoutMillis = Int32(varintInt32(f.varint))
		}
		return nil
	})
}
