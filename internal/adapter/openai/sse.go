package openai

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const maxSSELine = 1 << 20

// readSSE calls fn with the payload of every "data:" line until fn returns
// false, fn fails, or r is exhausted.
func readSSE(r io.Reader, fn func(data string) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		more, err := fn(data)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("openai: read stream: %w", err)
	}
	return nil
}
