package verify

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CompressedHeaderLine is the 1-based header line in compressed retrieval
// output. The retrieval tool writes metadata lines ahead of it on that path.
const CompressedHeaderLine = 6

// HeaderLine reads the header row of a canary artifact: line 6 of the
// decompressed stream when compressed, otherwise line 1. found is false when
// the file is shorter than that.
func HeaderLine(path string, compressed bool) (header string, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, eris.Wrapf(err, "verify: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	want := 1
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", false, eris.Wrapf(err, "verify: gzip reader %s", path)
		}
		defer gz.Close() //nolint:errcheck
		r = gz
		want = CompressedHeaderLine
	}

	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", false, eris.Wrapf(err, "verify: read %s", path)
		}
		if line == "" && err == io.EOF {
			return "", false, nil
		}
		if n == want {
			return strings.TrimRight(line, "\r\n"), true, nil
		}
		if err == io.EOF {
			return "", false, nil
		}
	}
}

// SplitHeader splits a header row on commas. An empty row has no columns.
func SplitHeader(header string) []string {
	if header == "" {
		return nil
	}
	return strings.Split(header, ",")
}
