package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/mlops-eval/typedb-driver/src/connection"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/stretchr/testify/require"
)

// Answers builds n distinct answers named prefix-0 .. prefix-(n-1).
func Answers(prefix string, n int) [][]byte {
	answers := make([][]byte, n)
	for i := range answers {
		answers[i] = []byte(fmt.Sprintf("%s-%d", prefix, i))
	}
	return answers
}

func Strings(answers [][]byte) []string {
	out := make([]string, len(answers))
	for i, a := range answers {
		out[i] = string(a)
	}
	return out
}

// OpenWrite opens a data session on database and a write transaction in it.
func OpenWrite(t *testing.T, client *connection.Client, database string, options *protocol.Options) (*connection.Session, *connection.Transaction) {
	t.Helper()
	ctx := context.Background()
	session, err := client.Session(ctx, database, protocol.SessionData, nil)
	require.NoError(t, err)
	tx, err := session.Transaction(ctx, protocol.TransactionWrite, options)
	require.NoError(t, err)
	return session, tx
}
