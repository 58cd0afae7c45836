package tools

import (
	"encoding/base64"
	"net/http"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

// maxImageBytes bounds what is inlined into a model request.
const maxImageBytes = 20 * 1024 * 1024

// PathResolver confines a user supplied path to an allowed root.
type PathResolver interface {
	Resolve(path string) (string, error)
}

type EncodedImage struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
	Size     int    `json:"size"`
}

// EncodeImage reads an image inside the resolver's root as base64.
func EncodeImage(resolver PathResolver, path string) (*EncodedImage, error) {
	full, err := resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, goerr.Wrap(err, "image not found", goerr.V("path", path))
	}
	if info.IsDir() {
		return nil, goerr.New("path is a directory", goerr.V("path", path))
	}
	if info.Size() > maxImageBytes {
		return nil, goerr.New("image too large", goerr.V("path", path), goerr.V("size", info.Size()))
	}

	b, err := os.ReadFile(full)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read image", goerr.V("path", path))
	}
	return &EncodedImage{
		MimeType: http.DetectContentType(b),
		Base64:   base64.StdEncoding.EncodeToString(b),
		Size:     len(b),
	}, nil
}
