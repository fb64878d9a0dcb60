package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
)

// AnswerIterator yields the answers of a streamed query one at a time. Each
// response part may carry several answers; the next part is only requested
// once the current one is used up. It returns io.EOF after the last answer.
type AnswerIterator struct {
	parts   *stream.ResponsePartIterator
	pending [][]byte
}

func newAnswerIterator(parts *stream.ResponsePartIterator) *AnswerIterator {
	return &AnswerIterator{parts: parts}
}

func (it *AnswerIterator) Next(ctx context.Context) ([]byte, error) {
	for len(it.pending) == 0 {
		part, err := it.parts.Next(ctx)
		if err != nil {
			return nil, err
		}
		if part.Kind != protocol.KindQuery {
			return nil, clienterrors.UnexpectedResponse.New(part.Kind, part.ReqID)
		}
		answers := &protocol.QueryAnswers{}
		if err := answers.Unmarshal(part.Body); err != nil {
			return nil, fmt.Errorf("failed to decode query answers: %w", err)
		}
		it.pending = answers.Answers
	}
	answer := it.pending[0]
	it.pending = it.pending[1:]
	return answer, nil
}

// Close stops the iteration early. Answers the server already sent are
// discarded.
func (it *AnswerIterator) Close() {
	it.pending = nil
	it.parts.Abandon()
}

// Seq adapts the iterator to a range-over-func sequence.
func (it *AnswerIterator) Seq(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			answer, err := it.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(answer, nil) {
				return
			}
		}
	}
}

// Collect drains the iterator.
func (it *AnswerIterator) Collect(ctx context.Context) ([][]byte, error) {
	var answers [][]byte
	for answer, err := range it.Seq(ctx) {
		if err != nil {
			return answers, err
		}
		answers = append(answers, answer)
	}
	return answers, nil
}
