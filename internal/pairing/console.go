package pairing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ConsoleOpener asks the operator on a terminal. Input is read by one
// goroutine shared by all sessions and handed only to the window open when
// the line arrives; lines typed while no window is open are discarded.
// EOF closes the open window and every later one.
type ConsoleOpener struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	outMu sync.Mutex

	mu      sync.Mutex
	current *consoleSurface
	eof     bool
}

// NewConsoleOpener prompts on out and reads y/n answers from in.
func NewConsoleOpener(in io.Reader, out io.Writer) *ConsoleOpener {
	return &ConsoleOpener{in: in, out: out}
}

func (o *ConsoleOpener) printf(format string, args ...any) {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	fmt.Fprintf(o.out, format, args...)
}

func (o *ConsoleOpener) readLoop() {
	sc := bufio.NewScanner(o.in)
	for sc.Scan() {
		o.dispatch(sc.Text())
	}

	o.mu.Lock()
	o.eof = true
	cur := o.current
	o.current = nil
	o.mu.Unlock()
	if cur != nil {
		cur.finish(Deny, false)
	}
}

func (o *ConsoleOpener) dispatch(line string) {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()
	if cur == nil {
		return
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		cur.finish(Approve, true)
	case "n", "no", "":
		cur.finish(Deny, true)
	default:
		o.printf("Please answer y or n.\n")
	}
}

func (o *ConsoleOpener) detach(s *consoleSurface) {
	o.mu.Lock()
	if o.current == s {
		o.current = nil
	}
	o.mu.Unlock()
}

// Open implements Opener.
func (o *ConsoleOpener) Open(ctx context.Context, p Prompt) (Surface, error) {
	s := &consoleSurface{
		opener:    o,
		decisions: make(chan Decision, 1),
	}

	o.mu.Lock()
	eof := o.eof
	if !eof {
		o.current = s
	}
	o.mu.Unlock()
	if eof {
		s.finish(Deny, false)
		return s, nil
	}

	o.printf("\n%q wants to pair with code %s. Allow? [y/N] (expires in %s)\n",
		p.AppID, p.Code, time.Until(p.Deadline).Round(time.Second))

	s.stopWatch = context.AfterFunc(ctx, func() { o.detach(s) })
	o.once.Do(func() { go o.readLoop() })
	return s, nil
}

type consoleSurface struct {
	opener    *ConsoleOpener
	decisions chan Decision
	stopWatch func() bool
	once      sync.Once
}

// finish delivers d (when decided) and closes the window. Only the first
// call has any effect.
func (s *consoleSurface) finish(d Decision, decided bool) {
	s.once.Do(func() {
		s.opener.detach(s)
		if decided {
			s.decisions <- d
		}
		close(s.decisions)
	})
}

func (s *consoleSurface) Decisions() <-chan Decision { return s.decisions }

func (s *consoleSurface) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.opener.detach(s)
	return nil
}
