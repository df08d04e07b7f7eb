package session

import (
	"fmt"
	"io"

	"github.com/metergrid/godlms/axdr"
)

// StreamElementType distinguishes the three kinds of StreamItem a DataStream
// yields while walking a (possibly deeply nested) Array/Structure value one
// element at a time.
type StreamElementType byte

const (
	StreamElementStart StreamElementType = iota
	StreamElementEnd
	StreamElementData
)

// StreamItem is one step of a DataStream walk: the opening/closing of a
// nested Array or Structure, or one leaf value.
type StreamItem struct {
	Type  StreamElementType
	Count int      // number of children, set on StreamElementStart
	Tag   axdr.Tag // the container tag, set on StreamElementStart/End
	Data  axdr.Data
}

// DataStream walks a reassembled GET response element by element instead of
// decoding it into a single axdr.Data tree up front, so a caller iterating a
// large Array (e.g. a ProfileGeneric buffer) decodes one element at a time;
// the undecoded response bytes stay in the ChunkedStream.
type DataStream interface {
	NextElement() (*StreamItem, error)
	Rewind() error
	Close() error
}

type streamFrame struct {
	remaining int
	tag       axdr.Tag
}

type dataStream struct {
	src     ChunkedStream
	stack   []streamFrame
	done    bool
	errored bool
}

// newDataStream wraps a ChunkedStream already holding one complete,
// undecoded GET-response value (single-block or block-reassembled).
func newDataStream(src ChunkedStream) DataStream {
	src.Rewind()
	return &dataStream{src: src, stack: []streamFrame{{remaining: 1}}}
}

func (d *dataStream) Rewind() error {
	d.src.Rewind()
	d.stack = d.stack[:1]
	d.stack[0].remaining = 1
	d.done = false
	d.errored = false
	return nil
}

func (d *dataStream) Close() error {
	d.src.Clear()
	return nil
}

func (d *dataStream) NextElement() (*StreamItem, error) {
	if d.done {
		return nil, io.EOF
	}
	if d.errored {
		return nil, fmt.Errorf("session: data stream already failed")
	}

	top := len(d.stack) - 1
	if d.stack[top].remaining == 0 {
		closed := d.stack[top]
		d.stack = d.stack[:top]
		if len(d.stack) == 0 {
			d.done = true
			return nil, io.EOF
		}
		d.stack[len(d.stack)-1].remaining--
		return &StreamItem{Type: StreamElementEnd, Tag: closed.tag}, nil
	}

	var tagByte [1]byte
	if _, err := io.ReadFull(d.src, tagByte[:]); err != nil {
		d.errored = true
		if err == io.EOF {
			return nil, fmt.Errorf("session: data stream: unexpected end of reassembled value")
		}
		return nil, err
	}
	tag := axdr.Tag(tagByte[0])

	if tag == axdr.TagArray || tag == axdr.TagStructure {
		n, _, err := axdr.DecodeLength(d.src)
		if err != nil {
			d.errored = true
			return nil, fmt.Errorf("session: data stream: decoding container length: %w", err)
		}
		d.stack = append(d.stack, streamFrame{remaining: int(n), tag: tag})
		return &StreamItem{Type: StreamElementStart, Count: int(n), Tag: tag}, nil
	}

	val, _, err := axdr.DecodeData(d.src, tag)
	if err != nil {
		d.errored = true
		return nil, fmt.Errorf("session: data stream: decoding element: %w", err)
	}
	d.stack[top].remaining--
	return &StreamItem{Type: StreamElementData, Data: val}, nil
}
