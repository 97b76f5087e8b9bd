package embeddings

import (
	"context"
	"errors"

	chromem "github.com/philippgille/chromem-go"
)

var errEmptyEmbedding = errors.New("embedder returned no vector")

// ToChromemFunc converts an Embedder into a chromem.EmbeddingFunc.
// chromem-go expects a function that embeds a single text at a time.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return EmbedOne(ctx, e, text)
	}
}
