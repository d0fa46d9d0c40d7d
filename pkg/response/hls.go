package response

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Playlist is an HLS manifest flattened to a queryable document.
type Playlist struct {
	Type           string              `json:"type"` // master or media
	Version        int                 `json:"version,omitempty"`
	TargetDuration float64             `json:"targetDuration,omitempty"`
	MediaSequence  int                 `json:"mediaSequence"`
	EndList        bool                `json:"endList"`
	Variants       []Variant           `json:"variants"`
	Segments       []Segment           `json:"segments"`
	Media          []map[string]string `json:"media"`
}

type Variant struct {
	Bandwidth  int               `json:"bandwidth"`
	Resolution string            `json:"resolution,omitempty"`
	Codecs     string            `json:"codecs,omitempty"`
	URI        string            `json:"uri"`
	Attributes map[string]string `json:"attributes"`
}

type Segment struct {
	Duration float64 `json:"duration"`
	Title    string  `json:"title,omitempty"`
	URI      string  `json:"uri"`
}

const m3uSignature = "#EXTM3U"

func newHLS(b base) *metaAdapter {
	if b.raw.Status >= 200 && b.raw.Status < 300 {
		b.rec.Pass(fmt.Sprintf("status %d is successful", b.raw.Status))
	} else {
		b.rec.Fail(fmt.Sprintf("status %d is not successful", b.raw.Status))
	}

	ct := b.raw.ContentType()
	body := bytes.TrimSpace(b.raw.Body)
	if bytes.HasPrefix(body, []byte(m3uSignature)) || strings.Contains(ct, "mpegurl") {
		b.rec.Pass("response is an HLS manifest")
	} else {
		b.rec.Fail(fmt.Sprintf("response is not an HLS manifest (content type %q)", ct))
	}

	p, err := ParsePlaylist(b.raw.Body)
	if err != nil {
		b.rec.Fail(err.Error())
	}
	return newMeta(b, p)
}

// ParsePlaylist reads an m3u8 manifest. Unknown tags are ignored. On a read
// error the playlist holds what was parsed up to that point.
func ParsePlaylist(data []byte) (*Playlist, error) {
	p := &Playlist{
		Type:     "media",
		Variants: []Variant{},
		Segments: []Segment{},
		Media:    []map[string]string{},
	}

	var pendingVariant *Variant
	var pendingSegment *Segment

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			switch {
			case pendingVariant != nil:
				pendingVariant.URI = line
				p.Variants = append(p.Variants, *pendingVariant)
				pendingVariant = nil
			case pendingSegment != nil:
				pendingSegment.URI = line
				p.Segments = append(p.Segments, *pendingSegment)
				pendingSegment = nil
			default:
				p.Segments = append(p.Segments, Segment{URI: line})
			}
			continue
		}

		tag, attrs, _ := strings.Cut(line, ":")
		switch tag {
		case "#EXT-X-VERSION":
			p.Version, _ = strconv.Atoi(attrs)
		case "#EXT-X-TARGETDURATION":
			p.TargetDuration, _ = strconv.ParseFloat(attrs, 64)
		case "#EXT-X-MEDIA-SEQUENCE":
			p.MediaSequence, _ = strconv.Atoi(attrs)
		case "#EXT-X-ENDLIST":
			p.EndList = true
		case "#EXT-X-STREAM-INF":
			a := parseAttributes(attrs)
			v := &Variant{Attributes: a, Resolution: a["RESOLUTION"], Codecs: a["CODECS"]}
			v.Bandwidth, _ = strconv.Atoi(a["BANDWIDTH"])
			pendingVariant = v
		case "#EXT-X-MEDIA":
			p.Media = append(p.Media, parseAttributes(attrs))
		case "#EXTINF":
			dur, title, _ := strings.Cut(attrs, ",")
			s := &Segment{Title: strings.TrimSpace(title)}
			s.Duration, _ = strconv.ParseFloat(strings.TrimSpace(dur), 64)
			pendingSegment = s
		}
	}

	if len(p.Variants) > 0 {
		p.Type = "master"
	}
	if err := sc.Err(); err != nil {
		return p, fmt.Errorf("HLS manifest truncated after %d segments: %w", len(p.Segments), err)
	}
	return p, nil
}

// parseAttributes splits KEY=VALUE,KEY="quoted, value" lists.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	var key, current strings.Builder
	inQuote, inValue := false, false

	flush := func() {
		if key.Len() > 0 {
			attrs[strings.TrimSpace(key.String())] = strings.Trim(current.String(), `"`)
		}
		key.Reset()
		current.Reset()
		inValue = false
	}

	for _, ch := range s {
		switch {
		case ch == '"':
			inQuote = !inQuote
			current.WriteRune(ch)
		case ch == ',' && !inQuote:
			flush()
		case ch == '=' && !inValue:
			inValue = true
		case inValue:
			current.WriteRune(ch)
		default:
			key.WriteRune(ch)
		}
	}
	flush()
	return attrs
}
