package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/you/uvian/internal/domain"
)

// Echo returns the job input unchanged. Useful for smoke tests.
func Echo(_ context.Context, job *domain.Job) (json.RawMessage, error) {
	return job.Input, nil
}

// Summarize is the document summarization job. The model call itself
// lives behind the SummarizeFunc seam; the default is a stub so the
// pipeline can run end to end without a model backend.
type Summarizer struct {
	// Summarize produces a summary for the referenced document.
	SummarizeFunc func(ctx context.Context, docID string) (string, error)
}

type summarizeInput struct {
	DocID string `json:"docId"`
}

type summarizeOutput struct {
	Summary string `json:"summary"`
}

func (s *Summarizer) Handle(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var in summarizeInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if in.DocID == "" {
		return nil, fmt.Errorf("input missing docId")
	}

	fn := s.SummarizeFunc
	if fn == nil {
		fn = stubSummarize
	}
	summary, err := fn(ctx, in.DocID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(summarizeOutput{Summary: summary})
}

func stubSummarize(ctx context.Context, docID string) (string, error) {
	// Simulate a slow model call that honors cancellation.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "summary of " + docID, nil
}
