package partition

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid/index"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	magicNum        = "DGRID"
	snapshotVersion = 1
)

// Snapshot is a point-in-time copy of a partition. Taking it only copies
// slot pointers; slots are immutable, so writing it out may run while the
// partition keeps changing.
type Snapshot struct {
	indexes []IndexDef
	slots   []*slot
}

// Snapshot captures the current state.
func (p *Partition) Snapshot() *Snapshot {
	snap := &Snapshot{indexes: p.Indexes()}
	p.entries.Range(func(_ string, s *slot) bool {
		snap.slots = append(snap.slots, s)
		return true
	})
	return snap
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int { return len(s.slots) }

type snapshotHeader struct {
	Indexes []snapshotIndex `json:"indexes"`
	Entries int             `json:"entries"`
}

type snapshotIndex struct {
	Extractor *filter.Node `json:"extractor"`
	Ordered   bool         `json:"ordered"`
}

// WriteTo writes the snapshot: a magic string, a version byte, then one JSON
// header line followed by one JSON line per entry.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 1024*1024)

	if _, err := bw.WriteString(magicNum); err != nil {
		return cw.n, err
	}
	if err := bw.WriteByte(snapshotVersion); err != nil {
		return cw.n, err
	}

	hdr := snapshotHeader{Entries: len(s.slots)}
	for _, def := range s.indexes {
		n, err := filter.EncodeExtractor(def.Extractor)
		if err != nil {
			return cw.n, err
		}
		hdr.Indexes = append(hdr.Indexes, snapshotIndex{Extractor: n, Ordered: def.Ordered})
	}
	enc := json.NewEncoder(bw)
	if err := enc.Encode(hdr); err != nil {
		return cw.n, err
	}
	for _, sl := range s.slots {
		if err := enc.Encode(filter.Entry{Key: sl.key, Value: sl.value}); err != nil {
			return cw.n, err
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Save writes a snapshot of the partition.
func (p *Partition) Save(w io.Writer) error {
	_, err := p.Snapshot().WriteTo(w)
	return err
}

// Load replaces the partition's content and indexes with a snapshot. No
// events are published. Load must not run concurrently with other
// operations.
func (p *Partition) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magic := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if string(magic) != magicNum {
		return errors.New("not a partition snapshot")
	}
	version, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read snapshot version: %w", err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	dec := json.NewDecoder(br)
	var hdr snapshotHeader
	if err := dec.Decode(&hdr); err != nil {
		return fmt.Errorf("invalid snapshot header: %w", err)
	}

	entries := xsync.NewMapOf[string, *slot](xsync.WithPresize(hdr.Entries))
	for i := 0; i < hdr.Entries; i++ {
		var e filter.Entry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("invalid snapshot entry %d: %w", i, err)
		}
		k, id, err := KeyOf(e.Key)
		if err != nil {
			return err
		}
		v, err := normalizeValue(e.Value)
		if err != nil {
			return err
		}
		entries.Store(id, &slot{key: k, value: v})
	}

	indexes := make(map[string]*index.Index, len(hdr.Indexes))
	for _, si := range hdr.Indexes {
		x, err := filter.DecodeExtractor(si.Extractor)
		if err != nil {
			return fmt.Errorf("invalid index in snapshot: %w", err)
		}
		key, err := indexKey(x)
		if err != nil {
			return err
		}
		ix := index.New(x, si.Ordered)
		entries.Range(func(id string, s *slot) bool {
			ix.Put(id, s.entry())
			return true
		})
		indexes[key] = ix
	}

	p.idxMu.Lock()
	p.entries = entries
	p.indexes = indexes
	p.idxMu.Unlock()
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
