package discovery

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Descriptor describes one remote file as reported by the crawler.
type Descriptor struct {
	RemoteID     string     `json:"remote_id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Size         *int64     `json:"size,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	CreatedTime  *time.Time `json:"created_time,omitempty"`
	ModifiedTime *time.Time `json:"modified_time,omitempty"`
}

// Validate reports whether the descriptor carries the fields required to
// track and upload it.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.RemoteID) == "" {
		return errors.New("remote_id is required")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("%s: url is required", d.RemoteID)
	}
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode reads descriptors from a JSON array or from JSON Lines.
func Decode(r io.Reader) ([]Descriptor, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	first, err := firstNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	decoder := json.NewDecoder(br)
	if first == '[' {
		var out []Descriptor
		if err := decoder.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode manifest array: %w", err)
		}
		return out, nil
	}

	var out []Descriptor
	for line := 1; ; line++ {
		var d Descriptor
		if err := decoder.Decode(&d); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode manifest entry %d: %w", line, err)
		}
		out = append(out, d)
	}
}

// DecodeFile reads descriptors from a manifest on disk.
func DecodeFile(path string) ([]Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
