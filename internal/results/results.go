package results

import (
	"context"
	"errors"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

var ErrInvalidPath = errors.New("invalid results path")

// Sink receives each response as soon as its check has been evaluated.
type Sink interface {
	Append(ctx context.Context, response expectation.Response) error
}

// Multi fans a response out to every sink in order and stops at the first
// error.
type Multi []Sink

func (m Multi) Append(ctx context.Context, response expectation.Response) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, response); err != nil {
			return err
		}
	}
	return nil
}

// Tally counts a list of responses the same way a run summary does.
type Tally struct {
	Total     int
	Passed    int
	Failed    int
	Warnings  int
	Escalated int
}

func Count(responses []expectation.Response) Tally {
	var tally Tally
	for _, response := range responses {
		tally.Total++
		switch {
		case response.Result:
			tally.Passed++
		case response.Escalates():
			tally.Failed++
			tally.Escalated++
		default:
			tally.Failed++
			tally.Warnings++
		}
	}
	return tally
}
