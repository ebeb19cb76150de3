package push

import (
	"errors"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

var errStreamClosed = errors.New("stream closed")

// wsStream presents a websocket connection as a byte stream so a frame codec
// can run on top of it. Each Write is sent as one text message; Read drains
// messages back to back.
type wsStream struct {
	conn   *websocket.Conn
	reader io.Reader

	wmu sync.Mutex

	once sync.Once
	done chan struct{}
	err  error
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn, done: make(chan struct{})}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				s.fail(err)
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			s.fail(err)
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		s.fail(err)
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.fail(errStreamClosed)
	return s.conn.Close()
}

// Done is closed once the stream has failed or been closed.
func (s *wsStream) Done() <-chan struct{} { return s.done }

// Err is the first error that ended the stream.
func (s *wsStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *wsStream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
