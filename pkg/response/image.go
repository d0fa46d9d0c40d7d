package response

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vikasavnish/httpsuite/pkg/ir"
)

// ImageMeta is what an ImageProber learns about an image response.
type ImageMeta struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	MIME   string `json:"mime"`
	Length int64  `json:"length"`
	URL    string `json:"url"`
}

// ImageProber extracts image metadata from a raw response.
type ImageProber interface {
	Probe(ctx context.Context, raw *ir.Response) (ImageMeta, error)
}

// DefaultImageProber decodes only the image header. MIME comes from magic
// bytes, falling back to the Content-Type header.
type DefaultImageProber struct{}

func (DefaultImageProber) Probe(ctx context.Context, raw *ir.Response) (ImageMeta, error) {
	meta := ImageMeta{
		MIME:   sniffMIME(raw),
		Length: int64(len(raw.Body)),
		URL:    raw.URL,
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw.Body))
	if err != nil {
		return meta, fmt.Errorf("decode image header: %w", err)
	}
	meta.Width, meta.Height = cfg.Width, cfg.Height
	return meta, nil
}

// sniffMIME identifies the body by magic bytes, then by header.
func sniffMIME(raw *ir.Response) string {
	if kind, err := filetype.Match(raw.Body); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return raw.ContentType()
}

func newImage(ctx context.Context, b base, prober ImageProber) *metaAdapter {
	meta, err := prober.Probe(ctx, b.raw)
	if err != nil {
		b.rec.Fail("image could not be probed: " + err.Error())
	}
	if meta.URL == "" {
		meta.URL = b.raw.URL
	}

	if strings.HasPrefix(meta.MIME, "image/") {
		b.rec.Pass(fmt.Sprintf("MIME type %s is an image", meta.MIME))
	} else {
		b.rec.Fail(fmt.Sprintf("MIME type %q is not an image", meta.MIME))
	}

	return newMeta(b, map[string]any{
		"width":  meta.Width,
		"height": meta.Height,
		"mime":   meta.MIME,
		"length": meta.Length,
		"url":    meta.URL,
		"path":   urlPath(meta.URL),
	})
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}
