package session

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// fakeTransport is a base.Stream double that hands back one queued response
// frame per Write call, in order, mirroring the real transport's contract
// that a Read sequence ends at EOF once one logical APDU has been delivered.
type fakeTransport struct {
	responses [][]byte
	writes    [][]byte
	next      int
	pending   *bytes.Reader
	closed    bool
}

func newFakeTransport(responses ...[]byte) *fakeTransport {
	return &fakeTransport{responses: responses}
}

func (f *fakeTransport) Open() error      { return nil }
func (f *fakeTransport) Close() error     { f.closed = true; return nil }
func (f *fakeTransport) Disconnect() error { f.closed = true; return nil }
func (f *fakeTransport) IsOpen() bool     { return !f.closed }

func (f *fakeTransport) SetLogger(*zap.SugaredLogger) {}
func (f *fakeTransport) SetDeadline(time.Time)        {}
func (f *fakeTransport) SetMaxReceivedBytes(int64)    {}

func (f *fakeTransport) Write(src []byte) error {
	f.writes = append(f.writes, append([]byte(nil), src...))
	if f.next >= len(f.responses) {
		return fmt.Errorf("fakeTransport: no queued response for write #%d", f.next+1)
	}
	f.pending = bytes.NewReader(f.responses[f.next])
	f.next++
	return nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if f.pending == nil {
		return 0, io.EOF
	}
	return f.pending.Read(p)
}
