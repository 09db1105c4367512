package server

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

type debugMsgType int

const (
	writeDebug debugMsgType = iota
	syncDebug
)

type debugMessage struct {
	msgType debugMsgType
	payload interface{}
}

// debugEntry is a line of the debug trace.
type debugEntry struct {
	Time     time.Time   `json:"time"`
	Type     string      `json:"type"`
	ClientID string      `json:"client_id,omitempty"`
	Request  interface{} `json:"request,omitempty"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// debugTrace writes entries to a JSONL file from its own goroutine, so that requests
// don't wait on the disk.
type debugTrace struct {
	msgs chan<- debugMessage
	done <-chan struct{}
}

// createDebug opens the trace file, named after the current time if filename is empty.
func createDebug(filename string) (*os.File, error) {
	if filename == "" {
		datetime := time.Now().Format("2006-01-02T15:04:05")
		filename = fmt.Sprintf("log_%s.jsonl", datetime)
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func runDebug(w io.Writer, logger log.Logger) *debugTrace {
	ch := make(chan debugMessage, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			switch msg.msgType {
			case writeDebug:
				bs, err := json.Marshal(msg.payload)
				if err != nil {
					level.Warn(logger).Log("msg", "failed to encode debug entry", "err", err)
					continue
				}
				w.Write(append(bs, '\n'))
			case syncDebug:
				if f, ok := w.(interface{ Sync() error }); ok {
					f.Sync()
				}
			}
		}
		if c, ok := w.(io.Closer); ok {
			c.Close()
		}
	}()
	return &debugTrace{msgs: ch, done: done}
}

func (d *debugTrace) write(entry debugEntry) {
	if d == nil {
		return
	}
	entry.Time = time.Now().UTC()
	d.msgs <- debugMessage{msgType: writeDebug, payload: entry}
	d.msgs <- debugMessage{msgType: syncDebug}
}

func (d *debugTrace) close() {
	if d == nil {
		return
	}
	close(d.msgs)
	<-d.done
}
