package supervisor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const prefixIDMaxLen = 16
const prefixCutSuffix = "..."

// LogPrefixer implements `io.Writer` interface and adds the service id as a
// prefix to each output line.
type LogPrefixer struct {
	writer io.Writer
	prefix []byte
}

// NewLogPrefixer initializes log prefixer for the given service id.
func NewLogPrefixer(writer io.Writer, serviceID string) *LogPrefixer {
	logPrefixer := &LogPrefixer{writer: writer}
	logPrefixer.prefix = logPrefixer.prefixForID(serviceID)
	return logPrefixer
}

func (p *LogPrefixer) Write(data []byte) (int, error) {
	reader := bufio.NewReader(bytes.NewReader(data))

	var line []byte
	var err error
	var bytesWritten int

	for {
		line, err = reader.ReadBytes('\n')

		// there can be data to write in `line` even if `io.EOF` error is returned.
		// exit immediately only in case of unexpected error.
		if err != nil && err != io.EOF {
			return bytesWritten, err
		}

		if len(line) > 0 {
			_, writeErr := p.writer.Write(p.prefix)
			if writeErr != nil {
				return bytesWritten, writeErr
			}

			n, writeErr := p.writer.Write(line)
			bytesWritten += n
			if writeErr != nil {
				return bytesWritten, writeErr
			}
		}

		if err == io.EOF {
			break
		}
	}

	return bytesWritten, nil
}

func (p *LogPrefixer) prefixForID(serviceID string) []byte {
	if len(serviceID) > prefixIDMaxLen {
		serviceID = serviceID[:prefixIDMaxLen]
		serviceID += prefixCutSuffix
	}

	prefix := fmt.Sprintf("[%s] ", serviceID)
	return []byte(prefix)
}
