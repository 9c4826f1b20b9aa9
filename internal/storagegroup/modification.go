package storagegroup

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Deletion is a single tombstone: delete all points for device/measurement
// with timestamp in [0, upperBound].
type Deletion struct {
	Device      string
	Measurement string
	UpperBound  int64
	Version     int64
}

func (d Deletion) String() string {
	return fmt.Sprintf("%d,%s,%s,%d", d.Version, d.Device, d.Measurement, d.UpperBound)
}

func parseDeletion(line string) (Deletion, error) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) != 4 {
		return Deletion{}, errors.Errorf("malformed modification record %q", line)
	}
	version, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Deletion{}, errors.Wrapf(err, "parse version in %q", line)
	}
	upper, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Deletion{}, errors.Wrapf(err, "parse upper bound in %q", line)
	}
	return Deletion{Version: version, Device: parts[1], Measurement: parts[2], UpperBound: upper}, nil
}

// ModificationFile is the append-only tombstone sidecar log for one
// data file ("<file>.mods"), matching the original's ModificationFile:
// appends are synchronous and durable, the whole file is read back on
// recovery to reconstruct applicable deletions for a resource.
type ModificationFile struct {
	mu   sync.Mutex
	path string
}

func OpenModificationFile(path string) *ModificationFile {
	return &ModificationFile{path: path}
}

func (m *ModificationFile) Path() string { return m.path }

// Append durably records one deletion.
func (m *ModificationFile) Append(d Deletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open modification file %s", m.path)
	}
	defer f.Close()

	if _, err := f.WriteString(d.String() + "\n"); err != nil {
		return errors.Wrapf(err, "append to modification file %s", m.path)
	}
	return f.Sync()
}

// ReadAll returns every deletion recorded in the file. Missing file is
// not an error: it means no deletions have ever been recorded.
func (m *ModificationFile) ReadAll() ([]Deletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open modification file %s", m.path)
	}
	defer f.Close()

	var out []Deletion
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d, err := parseDeletion(line)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan modification file %s", m.path)
	}
	return out, nil
}

// Truncate rewrites the file to contain exactly the given deletions,
// creating it if absent. Delete uses it to restore a sidecar when the
// call is aborted, and the merge end action uses it to write a target's
// fresh sidecar.
func (m *ModificationFile) Truncate(keep []Deletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Create(m.path)
	if err != nil {
		return errors.Wrapf(err, "truncate modification file %s", m.path)
	}
	defer f.Close()

	for _, d := range keep {
		if _, err := f.WriteString(d.String() + "\n"); err != nil {
			return errors.Wrapf(err, "rewrite modification file %s", m.path)
		}
	}
	return f.Sync()
}

func (m *ModificationFile) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete modification file %s", m.path)
	}
	return nil
}

// Applies reports whether d should be applied to points in [start,end]
// for the given device/measurement.
func (d Deletion) Applies(device, measurement string, t int64) bool {
	if d.Device != device {
		return false
	}
	if d.Measurement != "*" && d.Measurement != measurement {
		return false
	}
	return t <= d.UpperBound
}
