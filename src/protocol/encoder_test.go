package protocol

import (
	"errors"
	"testing"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeClient_PreservesRequestOrder(t *testing.T) {
	query, err := QueryReq(QueryMatch, "match $x isa person;", nil)
	require.NoError(t, err)
	commit := CommitReq()
	cont := StreamReq(query.ReqID)

	frame, err := EncodeClient([]*TransactionReq{query, cont, commit})
	require.NoError(t, err)

	decoded, err := DecodeClient(frame)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	assert.Equal(t, query.ReqID, decoded[0].ReqID)
	assert.Equal(t, KindQuery, decoded[0].Kind)
	assert.Equal(t, query.Body, decoded[0].Body)

	assert.Equal(t, query.ReqID, decoded[1].ReqID)
	assert.Equal(t, KindStream, decoded[1].Kind)

	assert.Equal(t, commit.ReqID, decoded[2].ReqID)
	assert.Equal(t, KindCommit, decoded[2].Kind)
}

func TestEncodeClient_RejectsUnknownKind(t *testing.T) {
	_, err := EncodeClient([]*TransactionReq{{ReqID: NewRequestID(), Kind: KindNotSet}})
	assert.Error(t, err)
}

func TestDecodeServer_Variants(t *testing.T) {
	id := NewRequestID()
	answers, err := (&QueryAnswers{Answers: [][]byte{[]byte("a1"), []byte("a2")}}).Marshal()
	require.NoError(t, err)

	tests := []struct {
		name    string
		res     Response
		variant Variant
		state   StreamState
	}{
		{"not set", NotSet(id), VariantNotSet, 0},
		{"single result", Result(id, KindCommit, nil), VariantResult, 0},
		{"query part", Part(id, KindQuery, answers), VariantPart, 0},
		{"continue", StreamPart(id, StreamContinue), VariantStream, StreamContinue},
		{"done", StreamPart(id, StreamDone), VariantStream, StreamDone},
		{"unknown state", StreamPart(id, StreamState(7)), VariantStream, StreamState(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeServer(tt.res)
			require.NoError(t, err)

			decoded, err := DecodeServer(frame)
			require.NoError(t, err)
			assert.Equal(t, id, decoded.ReqID)
			assert.Equal(t, tt.variant, decoded.Variant)
			if tt.variant == VariantStream {
				assert.Equal(t, tt.state, decoded.State)
			}
		})
	}
}

func TestDecodeServer_QueryPartBody(t *testing.T) {
	id := NewRequestID()
	body, err := (&QueryAnswers{Answers: [][]byte{[]byte("a1"), []byte("a2")}}).Marshal()
	require.NoError(t, err)
	frame, err := EncodeServer(Part(id, KindQuery, body))
	require.NoError(t, err)

	decoded, err := DecodeServer(frame)
	require.NoError(t, err)
	assert.Equal(t, KindQuery, decoded.Kind)

	var answers QueryAnswers
	require.NoError(t, answers.Unmarshal(decoded.Body))
	assert.Equal(t, [][]byte{[]byte("a1"), []byte("a2")}, answers.Answers)
}

func TestDecodeServer_MalformedFrames(t *testing.T) {
	_, err := DecodeServer(nil)
	assert.True(t, errors.Is(err, ErrMalformedFrame))

	_, err = DecodeServer([]byte{0x0a, 0x05, 0x01})
	assert.Error(t, err)

	// a response part carrying only a truncated request id
	_, err = DecodeServer([]byte{0x12, 0x04, 0x0a, 0x02, 0x01, 0x02})
	assert.Error(t, err)
}

func TestOptions_RoundTripKeepsExplicitZeroes(t *testing.T) {
	opts := &Options{
		Infer:     Bool(false),
		Explain:   Bool(true),
		BatchSize: Int32(50),
	}
	b, err := opts.Marshal()
	require.NoError(t, err)

	var decoded Options
	require.NoError(t, decoded.Unmarshal(b))
	require.NotNil(t, decoded.Infer)
	assert.False(t, *decoded.Infer)
	assert.True(t, *decoded.Explain)
	assert.Equal(t, int32(50), *decoded.BatchSize)
	assert.Nil(t, decoded.Parallel)
}

func TestOptions_ValidateBatchSize(t *testing.T) {
	assert.NoError(t, (*Options)(nil).Validate())
	assert.NoError(t, (&Options{BatchSize: Int32(1)}).Validate())

	err := (&Options{BatchSize: Int32(0)}).Validate()
	assert.True(t, errors.Is(err, clienterrors.NonPositiveBatchSize))
}

func TestOpenRequest_RoundTrip(t *testing.T) {
	req, err := OpenReq([]byte("session-1"), TransactionWrite, &Options{Prefetch: Bool(true)}, 12)
	require.NoError(t, err)

	var body OpenRequest
	require.NoError(t, body.Unmarshal(req.Body))
	assert.Equal(t, []byte("session-1"), body.SessionID)
	assert.Equal(t, TransactionWrite, body.Type)
	assert.Equal(t, int32(12), body.NetworkLatencyMillis)
	require.NotNil(t, body.Options)
	assert.True(t, *body.Options.Prefetch)
}

func TestParseTypes(t *testing.T) {
	st, err := ParseSessionType("schema")
	require.NoError(t, err)
	assert.Equal(t, SessionSchema, st)

	_, err = ParseSessionType("graph")
	assert.True(t, errors.Is(err, clienterrors.UnrecognisedSessionType))

	tt, err := ParseTransactionType("write")
	require.NoError(t, err)
	assert.Equal(t, TransactionWrite, tt)
	assert.True(t, errors.Is(TransactionType(9).Validate(), clienterrors.UnrecognisedTransactionType))
}
