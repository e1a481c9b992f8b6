package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"scrapebridge/internal/auth"
	"strings"
	"sync"
)

type promptLine struct {
	text string
	err  error
}

// linePrompt reads `in` from a single goroutine. A read that is cancelled leaves
// its line in the channel for the next RetrieveOtp.
type linePrompt struct {
	message string
	in      io.Reader
	out     io.Writer

	once  sync.Once
	lines chan promptLine
}

func newLinePrompt(message string, in io.Reader, out io.Writer) *linePrompt {
	return &linePrompt{message: message, in: in, out: out, lines: make(chan promptLine)}
}

func (p *linePrompt) read() {
	defer close(p.lines)
	reader := bufio.NewReader(p.in)
	for {
		text, err := reader.ReadString('\n')
		if err == io.EOF && text != "" {
			err = nil
		}
		p.lines <- promptLine{text: strings.TrimSpace(text), err: err}
		if err != nil {
			return
		}
	}
}

// RetrieveOtp reads one line, an empty line is returned as an empty code.
func (p *linePrompt) RetrieveOtp(ctx context.Context) (string, error) {
	p.once.Do(func() {
		go p.read()
	})
	fmt.Fprint(p.out, p.message)

	select {
	case l, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// otpPrompt asks on the terminal until a non-empty code is entered.
func otpPrompt(message string) auth.OtpRetriever {
	p := newLinePrompt(message, os.Stdin, os.Stderr)
	return auth.RetryEmpty(p, func(int) {
		fmt.Fprintln(p.out, "OTP code is required. Please try again.")
	})
}
