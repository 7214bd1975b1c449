package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format versions. V1 is a plain JSON archive, V2 a JSON header line
// followed by a gzip payload.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize caps the decompressed V2 payload (64MB).
const MaxDecompressedSize = 64 * 1024 * 1024

// Header is the plain-text first line of a V2 archive.
type Header struct {
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Checksum   string            `json:"checksum"`
	SigilCount int               `json:"sigil_count"`
	Compressed bool              `json:"compressed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DetectFormat reads the first line of path to tell V1 from V2.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("reading first line: %w", err)
		}
		return 0, fmt.Errorf("file is empty")
	}

	firstLine := strings.TrimSpace(scanner.Text())
	if firstLine == "" {
		return 0, fmt.Errorf("first line is empty")
	}

	var header Header
	if err := json.Unmarshal([]byte(firstLine), &header); err == nil && header.Version == FormatV2 {
		return FormatV2, nil
	}
	if firstLine[0] == '{' {
		return FormatV1, nil
	}
	return 0, fmt.Errorf("unrecognized archive format")
}

// WriteV2 writes a as a header line plus gzip-compressed JSON.
func WriteV2(path string, a *Archive) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:    FormatV2,
		CreatedAt:  a.CreatedAt,
		Checksum:   checksum(compressed.Bytes()),
		SigilCount: len(a.Sigils),
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return f.Close()
}

// ReadV2 reads a V2 archive, verifying the checksum before decompressing.
func ReadV2(path string) (*Archive, error) {
	header, payload, err := readV2Parts(path)
	if err != nil {
		return nil, err
	}
	if got := checksum(payload); got != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var a Archive
	if err := json.Unmarshal(decompressed, &a); err != nil {
		return nil, fmt.Errorf("parsing archive data: %w", err)
	}
	return &a, nil
}

// ReadV2Header reads only the header line of a V2 archive.
func ReadV2Header(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks a V2 archive's payload against its header.
func VerifyChecksum(path string) error {
	header, payload, err := readV2Parts(path)
	if err != nil {
		return err
	}
	if got := checksum(payload); got != header.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}
	return nil
}

func readV2Parts(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, payload, nil
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
