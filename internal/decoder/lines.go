package decoder

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Lines reads scanner input where each line is one decoded payload, the way
// keyboard-wedge scanners deliver it. Blank lines are skipped. The channel
// closes at EOF or when ctx ends.
func Lines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			errc <- err
		}
	}()
	return out, errc
}
