package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jsherman999/fixihub/internal/push"
)

// printFrames writes one line per frame until the stream ends.
func printFrames(w io.Writer, p *push.Parser) error {
	for {
		f, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if f.Event == "" {
			for _, c := range f.Comments {
				fmt.Fprintf(w, ": %s\n", c)
			}
			continue
		}
		e, err := f.Envelope()
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\n", f.Event, f.Data)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%q\n", e.Target, e.Swap, e.Text)
	}
}
