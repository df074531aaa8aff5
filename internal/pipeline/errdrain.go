package pipeline

import (
	"bufio"
	"io"

	"cyclicbackup/internal/errbuf"
)

// DrainErrors reads r line by line until EOF, appending each nonempty line
// to buf. Used identically for the encryptor's and compressor's stderr
// streams (spec.md §4.7's "two identical drains").
func DrainErrors(r io.Reader, buf *errbuf.Buffer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		buf.AddError(line)
	}
	return scanner.Err()
}
