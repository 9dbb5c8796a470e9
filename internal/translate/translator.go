package translate

import (
	"context"
)

// Translator converts one transcript to the target language. Any failure is
// returned as an error; the caller decides how failures surface downstream.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}
