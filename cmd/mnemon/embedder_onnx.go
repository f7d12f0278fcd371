//go:build onnx

package main

import (
	"github.com/mnemon-dev/mnemon/config"
	"github.com/mnemon-dev/mnemon/memory"
	"github.com/mnemon-dev/mnemon/memory/embedder/onnx"
)

func newModelEmbedder(cfg *config.Config) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     cfg.Embedding.ModelPath,
		TokenizerPath: cfg.Embedding.TokenizerPath,
		LibraryPath:   cfg.Embedding.LibraryPath,
		Dimensions:    cfg.Embedding.Dimension,
	})
}
