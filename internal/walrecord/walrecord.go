// Package walrecord implements the write-ahead log a writable buffer
// appends each row to before applying it, so an unclean shutdown can
// replay unflushed rows on recovery. RecordDeletion exists as a record
// type, but a buffer does not log deletions: Buffer.ApplyDeletion
// changes only the in-memory store. Grounded on the binary
// length-prefixed record format and buffered-writer-then-fsync-on-close
// idiom of a segment commit logger.
package walrecord

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

type RecordType uint8

const (
	RecordInsert RecordType = iota + 1
	RecordDeletion
)

type Record struct {
	Type    RecordType
	Device  string
	Payload json.RawMessage
}

// Log is an append-only, length-prefixed binary record file.
type Log struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func Create(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create wal %s", path)
	}
	return &Log{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) Append(rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal wal record")
	}

	header := make([]byte, 5)
	header[0] = byte(rec.Type)
	binary.LittleEndian.PutUint32(header[1:], uint32(len(body)))

	if _, err := l.w.Write(header); err != nil {
		return errors.Wrap(err, "write wal header")
	}
	if _, err := l.w.Write(body); err != nil {
		return errors.Wrap(err, "write wal body")
	}
	return nil
}

func (l *Log) Flush() error {
	if err := l.w.Flush(); err != nil {
		return errors.Wrap(err, "flush wal buffer")
	}
	return l.f.Sync()
}

func (l *Log) Close() error {
	if err := l.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Delete closes and removes the log file, called once its records have
// been durably applied to a sealed file.
func (l *Log) Delete() error {
	_ = l.f.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete wal %s", l.path)
	}
	return nil
}

// Replay reads every record from path in order, calling apply for each.
// A missing file yields zero records without error: it means the
// buffer sealed cleanly before crashing, or never wrote anything.
func Replay(path string, apply func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "open wal %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		header := make([]byte, 5)
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				// last record was truncated mid-write by a crash; stop replay here
				return nil
			}
			return errors.Wrapf(err, "read wal header in %s", path)
		}

		recType := RecordType(header[0])
		length := binary.LittleEndian.Uint32(header[1:])
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "read wal body in %s", path)
		}

		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return errors.Wrapf(err, "decode wal record in %s", path)
		}
		rec.Type = recType

		if err := apply(rec); err != nil {
			return err
		}
	}
}
