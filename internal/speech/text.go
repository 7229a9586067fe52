package speech

import (
	"context"
	"strings"
	"sync"

	apierrors "github.com/diogo/checkin/internal/errors"
)

// TextEngine is the keyboard fallback: lines fed while listening are
// reported as final results
type TextEngine struct {
	mu       sync.Mutex
	onResult func(Result)
}

func NewTextEngine() *TextEngine {
	return &TextEngine{}
}

func (e *TextEngine) Available() bool { return true }

func (e *TextEngine) Start(_ context.Context, onResult func(Result)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = onResult
	return nil
}

func (e *TextEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = nil
	return nil
}

// Feed reports text as a final result
func (e *TextEngine) Feed(text string) error {
	e.mu.Lock()
	fn := e.onResult
	e.mu.Unlock()
	if fn == nil {
		return apierrors.ErrNotListening
	}
	if text = strings.TrimSpace(text); text != "" {
		fn(Result{Text: text, Final: true})
	}
	return nil
}
