package download

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	tagHeader         = "#EXTM3U"
	tagVersion        = "#EXT-X-VERSION:"
	tagTargetDuration = "#EXT-X-TARGETDURATION:"
	tagStreamInf      = "#EXT-X-STREAM-INF"
	tagInf            = "#EXTINF:"
	tagMap            = "#EXT-X-MAP:"
	tagDiscontinuity  = "#EXT-X-DISCONTINUITY"
	tagByteRange      = "#EXT-X-BYTERANGE"
	tagKey            = "#EXT-X-KEY:"
)

// Segment is one media segment of a playlist
type Segment struct {
	Index int
	// Duration is the EXTINF value exactly as the server wrote it
	Duration      string
	URI           *url.URL
	Discontinuity bool
}

// Playlist is a parsed HLS playlist. A master playlist only carries
// Variants; a media playlist carries the segment list.
type Playlist struct {
	URL      *url.URL
	Variants []*url.URL

	Version        int
	TargetDuration string
	Map            *url.URL
	Segments       []Segment
}

// IsMaster reports whether the playlist lists variants instead of segments
func (p *Playlist) IsMaster() bool {
	return len(p.Variants) > 0
}

// ParsePlaylist reads an HLS playlist. Relative URIs are resolved against
// base.
func ParsePlaylist(r io.Reader, base *url.URL) (*Playlist, error) {
	p := &Playlist{URL: base}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		first         = true
		pendingInf    *string
		streamInf     bool
		discontinuity bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != tagHeader {
				return nil, fmt.Errorf("not an HLS playlist: missing %s", tagHeader)
			}
			first = false
			continue
		}

		switch {
		case strings.HasPrefix(line, tagVersion):
			v, err := strconv.Atoi(strings.TrimPrefix(line, tagVersion))
			if err != nil {
				return nil, fmt.Errorf("invalid %s line %q", tagVersion, line)
			}
			p.Version = v
		case strings.HasPrefix(line, tagTargetDuration):
			p.TargetDuration = strings.TrimPrefix(line, tagTargetDuration)
		case strings.HasPrefix(line, tagStreamInf):
			streamInf = true
		case strings.HasPrefix(line, tagInf):
			d := strings.TrimPrefix(line, tagInf)
			if i := strings.IndexByte(d, ','); i >= 0 {
				d = d[:i]
			}
			pendingInf = &d
		case strings.HasPrefix(line, tagMap):
			uri, ok := attribute(strings.TrimPrefix(line, tagMap), "URI")
			if !ok {
				return nil, fmt.Errorf("%s without URI", tagMap)
			}
			u, err := resolveRef(base, uri)
			if err != nil {
				return nil, err
			}
			p.Map = u
		case strings.HasPrefix(line, tagKey):
			method, _ := attribute(strings.TrimPrefix(line, tagKey), "METHOD")
			if method != "" && method != "NONE" {
				return nil, fmt.Errorf("encrypted playlists are not supported (METHOD=%s)", method)
			}
		case strings.HasPrefix(line, tagByteRange):
			return nil, fmt.Errorf("byte-range playlists are not supported")
		case line == tagDiscontinuity:
			discontinuity = true
		case strings.HasPrefix(line, "#"):
			// other tags are not carried into the local manifest
		default:
			u, err := resolveRef(base, line)
			if err != nil {
				return nil, err
			}
			switch {
			case streamInf:
				p.Variants = append(p.Variants, u)
				streamInf = false
			case pendingInf != nil:
				p.Segments = append(p.Segments, Segment{
					Index:         len(p.Segments),
					Duration:      *pendingInf,
					URI:           u,
					Discontinuity: discontinuity,
				})
				pendingInf = nil
				discontinuity = false
			default:
				return nil, fmt.Errorf("URI %q without EXTINF or EXT-X-STREAM-INF", line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	if first {
		return nil, fmt.Errorf("not an HLS playlist: empty body")
	}
	return p, nil
}

// SegmentExt returns the file extension used for local segment copies
func (p *Playlist) SegmentExt() string {
	if len(p.Segments) > 0 {
		if ext := path.Ext(p.Segments[0].URI.Path); ext != "" {
			return ext
		}
	}
	if p.Map != nil {
		return ".m4s"
	}
	return ".ts"
}

// InitName returns the local file name of the init section
func (p *Playlist) InitName() string {
	if p.Map == nil {
		return ""
	}
	ext := path.Ext(p.Map.Path)
	if ext == "" {
		ext = ".mp4"
	}
	return "init" + ext
}

// SegmentName returns the local file name of segment i
func (p *Playlist) SegmentName(i int) string {
	return fmt.Sprintf("%05d%s", i, p.SegmentExt())
}

// LocalManifest renders a VOD playlist that references the local copies
// of the segments. Target and segment durations are kept verbatim.
func (p *Playlist) LocalManifest() []byte {
	version := p.Version
	if version < 3 {
		version = 3
	}

	var b bytes.Buffer
	b.WriteString(tagHeader + "\n")
	fmt.Fprintf(&b, "%s%d\n", tagVersion, version)
	if p.TargetDuration != "" {
		fmt.Fprintf(&b, "%s%s\n", tagTargetDuration, p.TargetDuration)
	}
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	if p.Map != nil {
		fmt.Fprintf(&b, "%sURI=%q\n", tagMap, p.InitName())
	}
	for _, seg := range p.Segments {
		if seg.Discontinuity {
			b.WriteString(tagDiscontinuity + "\n")
		}
		fmt.Fprintf(&b, "%s%s,\n%s\n", tagInf, seg.Duration, p.SegmentName(seg.Index))
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.Bytes()
}

func resolveRef(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist URI %q: %w", ref, err)
	}
	if base == nil {
		return u, nil
	}
	return base.ResolveReference(u), nil
}

// attribute extracts one attribute from a tag's attribute list
func attribute(list, name string) (string, bool) {
	for len(list) > 0 {
		eq := strings.IndexByte(list, '=')
		if eq < 0 {
			return "", false
		}
		key := strings.TrimSpace(list[:eq])
		list = list[eq+1:]

		var value string
		if strings.HasPrefix(list, `"`) {
			end := strings.IndexByte(list[1:], '"')
			if end < 0 {
				return "", false
			}
			value = list[1 : end+1]
			list = list[end+2:]
		} else if comma := strings.IndexByte(list, ','); comma >= 0 {
			value = list[:comma]
			list = list[comma:]
		} else {
			value = list
			list = ""
		}
		list = strings.TrimPrefix(list, ",")

		if key == name {
			return value, true
		}
	}
	return "", false
}
