package response

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/tidwall/gjson"
)

// MediaProber returns an ffprobe-style JSON report for a media URL.
type MediaProber interface {
	Probe(ctx context.Context, url string) ([]byte, error)
}

// FFProbe runs the ffprobe binary. Path defaults to "ffprobe" on $PATH.
type FFProbe struct {
	Path string
}

func (f FFProbe) Probe(ctx context.Context, url string) ([]byte, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", url)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func newMedia(ctx context.Context, b base, prober MediaProber) *metaAdapter {
	a := &metaAdapter{base: b}
	report, err := prober.Probe(ctx, b.raw.URL)
	switch {
	case err != nil:
		b.rec.Fail("media probe failed: " + err.Error())
		a.setRoot(map[string]any{})
	case !gjson.ValidBytes(report):
		b.rec.Fail("media probe returned invalid JSON")
		a.setRoot(map[string]any{})
	default:
		b.rec.Pass("media probe succeeded")
		a.setRootJSON(report)
	}
	return a
}
