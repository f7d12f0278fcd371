//go:build !onnx

package main

import (
	"errors"

	"github.com/mnemon-dev/mnemon/config"
	"github.com/mnemon-dev/mnemon/memory"
)

func newModelEmbedder(*config.Config) (memory.Embedder, error) {
	return nil, errors.New("built without the onnx tag; rebuild with -tags onnx or run with -mock")
}
