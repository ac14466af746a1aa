package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/guseggert/nmproxy/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	log *zap.SugaredLogger
)

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	log = l.Sugar()
}

func collect(r *Router) []Message {
	var msgs []Message
	for {
		m, ok := r.Recv()
		if !ok {
			return msgs
		}
		msgs = append(msgs, m)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestPumpSplitsLargeWrites(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 60)
	r := NewRouter()

	err := Pump(log, frame.TagOutput, bytes.NewReader(payload), r.Sender())
	require.NoError(t, err)
	assert.True(t, r.Closed())

	msgs := collect(r)
	require.Len(t, msgs, 4)
	assert.Len(t, msgs[0].Data, 255)
	assert.Len(t, msgs[1].Data, 255)
	assert.Len(t, msgs[2].Data, 90)
	assert.True(t, msgs[3].EOF())

	var joined []byte
	for _, m := range msgs {
		assert.Equal(t, frame.TagOutput, m.Tag)
		joined = append(joined, m.Data...)
	}
	assert.Equal(t, payload, joined)
}

func TestPumpReadErrorEndsWithSentinel(t *testing.T) {
	r := NewRouter()
	src := &failingReader{data: []byte("partial"), err: errors.New("boom")}

	err := Pump(log, frame.TagDiagnostic, src, r.Sender())
	assert.ErrorContains(t, err, "boom")

	msgs := collect(r)
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial", string(msgs[0].Data))
	assert.True(t, msgs[1].EOF())
	assert.Equal(t, frame.TagDiagnostic, msgs[1].Tag)
}

func TestPumpStopsWhenRouterClosed(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	r.Close()

	err := Pump(log, frame.TagInput, strings.NewReader("ignored"), s)
	assert.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestDrainWritesInOrderAndStopsOnSentinel(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	for _, m := range []Message{
		{Tag: frame.TagInput, Data: []byte("A")},
		{Tag: frame.TagOutput, Data: []byte("no sink")},
		{Tag: frame.TagInput, Data: []byte("B")},
		{Tag: frame.TagInput},
		{Tag: frame.TagInput, Data: []byte("after EOF")},
	} {
		require.NoError(t, s.Send(m))
	}

	var sink bytes.Buffer
	err := Drain(log, r, Sinks{frame.TagInput: &sink})
	require.NoError(t, err)
	assert.Equal(t, "AB", sink.String())
	assert.True(t, r.Closed())
	assert.ErrorIs(t, s.Send(Message{Tag: frame.TagInput, Data: []byte("x")}), ErrClosed)
}

func TestDrainStopsOnFirstSentinel(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	for _, m := range []Message{
		{Tag: frame.TagOutput, Data: []byte("out")},
		{Tag: frame.TagOutput},
		{Tag: frame.TagDiagnostic, Data: []byte("after sentinel")},
		{Tag: frame.TagDiagnostic},
	} {
		require.NoError(t, s.Send(m))
	}

	var stdout, stderr bytes.Buffer
	err := Drain(log, r, Sinks{frame.TagOutput: &stdout, frame.TagDiagnostic: &stderr})
	require.NoError(t, err)
	assert.Equal(t, "out", stdout.String())
	assert.Empty(t, stderr.String())
	assert.True(t, r.Closed())
}

func TestDrainIgnoresSentinelWithoutSink(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	for _, m := range []Message{
		{Tag: frame.TagDiagnostic},
		{Tag: frame.TagInput, Data: []byte("still open")},
		{Tag: frame.TagInput},
	} {
		require.NoError(t, s.Send(m))
	}

	var sink bytes.Buffer
	require.NoError(t, Drain(log, r, Sinks{frame.TagInput: &sink}))
	assert.Equal(t, "still open", sink.String())
}

func TestDrainReturnsOnClosedRouter(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	require.NoError(t, s.Send(Message{Tag: frame.TagOutput, Data: []byte("last")}))
	s.Close()

	var sink bytes.Buffer
	require.NoError(t, Drain(log, r, Sinks{frame.TagOutput: &sink}))
	assert.Equal(t, "last", sink.String())
}

func TestDrainFlushesEveryWrite(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	require.NoError(t, s.Send(Message{Tag: frame.TagOutput, Data: []byte("now")}))
	require.NoError(t, s.Send(Message{Tag: frame.TagOutput}))

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	require.NoError(t, Drain(log, r, Sinks{frame.TagOutput: bw}))
	assert.Equal(t, "now", out.String())
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestDrainWriteErrorClosesRouter(t *testing.T) {
	r := NewRouter()
	s := r.Sender()
	require.NoError(t, s.Send(Message{Tag: frame.TagInput, Data: []byte("x")}))

	err := Drain(log, r, Sinks{frame.TagInput: brokenWriter{}})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.True(t, r.Closed())
}

func TestFramesRoundTripThroughTransport(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 600)

	// local source -> router -> encoded frames
	out := NewRouter()
	require.NoError(t, Pump(log, frame.TagInput, bytes.NewReader(payload), out.Sender()))
	var wire bytes.Buffer
	require.NoError(t, DrainFrames(log, out, NewFrameWriter(&wire)))

	// every frame on the wire fits the one byte size field
	raw := bytes.NewReader(wire.Bytes())
	var sizes []int
	for {
		f, err := frame.Decode(raw)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(f.Payload))
	}
	assert.Equal(t, []int{255, 255, 90, 0}, sizes)

	// encoded frames -> router -> local sink
	in := NewRouter()
	require.NoError(t, PumpFrames(log, &wire, in.Sender()))
	var sink bytes.Buffer
	require.NoError(t, Drain(log, in, Sinks{frame.TagInput: &sink}))
	assert.Equal(t, payload, sink.Bytes())
}

func TestPumpFramesDropsUnknownTagsAndReportsTruncation(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, frame.Write(&wire, frame.Tag(9), []byte("drop me")))
	require.NoError(t, frame.Write(&wire, frame.TagOutput, []byte("keep")))
	wire.Write([]byte{4, byte(frame.TagOutput), 'a'})

	r := NewRouter()
	err := PumpFrames(log, &wire, r.Sender())
	assert.ErrorIs(t, err, frame.ErrTruncated)

	msgs := collect(r)
	require.Len(t, msgs, 1)
	assert.Equal(t, "keep", string(msgs[0].Data))
}

func TestFrameWriterRejectsOversizedPayload(t *testing.T) {
	var wire bytes.Buffer
	fw := NewFrameWriter(&wire)
	assert.ErrorIs(t, fw.WriteFrame(frame.TagOutput, make([]byte, 256)), frame.ErrPayloadTooLarge)
	assert.Zero(t, wire.Len())
}

func TestFrameWriterKeepsConcurrentFramesWhole(t *testing.T) {
	var wire bytes.Buffer
	fw := NewFrameWriter(&wire)

	var wg sync.WaitGroup
	for _, tag := range []frame.Tag{frame.TagOutput, frame.TagDiagnostic} {
		wg.Add(1)
		go func(tag frame.Tag) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, fw.WriteFrame(tag, bytes.Repeat([]byte{byte(tag)}, 200)))
			}
		}(tag)
	}
	wg.Wait()

	counts := map[frame.Tag]int{}
	for {
		f, err := frame.Decode(&wire)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{byte(f.Tag)}, 200), f.Payload)
		counts[f.Tag]++
	}
	assert.Equal(t, map[frame.Tag]int{frame.TagOutput: 100, frame.TagDiagnostic: 100}, counts)
}
