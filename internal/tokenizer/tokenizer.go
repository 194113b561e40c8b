package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docscope/docscope-backend/internal/platform/logger"
)

const encodingName = "cl100k_base"

// Counter reports how many model tokens a piece of text consumes. Counts
// are computed once at ingestion and stored on the document record; the
// budget checks compare those stored counts, so whatever counter produced
// them stays consistent across checks.
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// heuristicCounter approximates tokens as characters/4, the usual rule of
// thumb for English prose. Used when the encoding data is unavailable
// (offline environments).
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

var (
	newOnce sync.Once
	shared  Counter
)

// New returns the process-wide counter. tiktoken loads its encoding
// lazily; falling back to the heuristic keeps ingestion working when the
// encoding cannot be loaded.
func New(log *logger.Logger) Counter {
	newOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			log.Warn("tiktoken encoding unavailable; using heuristic token counts", "encoding", encodingName, "error", err)
			shared = heuristicCounter{}
			return
		}
		shared = &tiktokenCounter{enc: enc}
	})
	return shared
}

// NewHeuristic returns the fallback counter directly. Used by tests for
// deterministic counts.
func NewHeuristic() Counter {
	return heuristicCounter{}
}
