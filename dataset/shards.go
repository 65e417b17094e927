package dataset

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

// Shard files are TAR archives of gob-encoded batches, named
// shard-NNNNNN.tar.
var shardPattern = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// ShardName formats the canonical file name for shard index i.
func ShardName(i int) string { return fmt.Sprintf("shard-%06d.tar", i) }

// batchRecord is the serialized form of one batch inside a shard.
type batchRecord struct {
	Params      []float64
	ParamsShape []int
	Obs         []float64
	ObsShape    []int
	Models      []float64
	ModelsShape []int
}

func toRecord(b trainer.Batch) batchRecord {
	var rec batchRecord
	if b.Params != nil {
		rec.Params = b.Params.Data().([]float64)
		rec.ParamsShape = b.Params.Shape()
	}
	if b.Obs != nil {
		rec.Obs = b.Obs.Data().([]float64)
		rec.ObsShape = b.Obs.Shape()
	}
	if b.Models != nil {
		rec.Models = b.Models.Data().([]float64)
		rec.ModelsShape = b.Models.Shape()
	}
	return rec
}

func fromRecord(rec batchRecord) trainer.Batch {
	var b trainer.Batch
	if len(rec.ObsShape) > 0 {
		b.Obs = tensor.New(tensor.WithShape(rec.ObsShape...), tensor.WithBacking(rec.Obs))
	}
	if len(rec.ParamsShape) > 0 {
		b.Params = tensor.New(tensor.WithShape(rec.ParamsShape...), tensor.WithBacking(rec.Params))
	}
	if len(rec.ModelsShape) > 0 {
		b.Models = tensor.New(tensor.WithShape(rec.ModelsShape...), tensor.WithBacking(rec.Models))
	}
	return b
}

// WriteShard materializes batches into the shard file at path.
func WriteShard(path string, batches []trainer.Batch) error {
	if len(batches) == 0 {
		return errors.New("dataset: refusing to write an empty shard")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard: %w", err)
	}
	tw := tar.NewWriter(f)
	for i, batch := range batches {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(toRecord(batch)); err != nil {
			f.Close()
			return fmt.Errorf("encode batch %d: %w", i, err)
		}
		hdr := &tar.Header{
			Name: fmt.Sprintf("batch-%06d.gob", i),
			Mode: 0o644,
			Size: int64(buf.Len()),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			f.Close()
			return fmt.Errorf("write batch %d header: %w", i, err)
		}
		if _, err := tw.Write(buf.Bytes()); err != nil {
			f.Close()
			return fmt.Errorf("write batch %d: %w", i, err)
		}
	}
	if err := tw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize shard: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close shard: %w", err)
	}
	return nil
}

// ReadShard loads every batch stored in the shard file at path, in
// order.
func ReadShard(path string) ([]trainer.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	var batches []trainer.Batch
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read shard entry: %w", err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		var rec batchRecord
		if err := gob.NewDecoder(tr).Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", hdr.Name, err)
		}
		batches = append(batches, fromRecord(rec))
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("shard %s holds no batches", path)
	}
	return batches, nil
}

// DiscoverShards returns the sorted paths of all shard files beneath
// root.
func DiscoverShards(root string) ([]string, error) {
	shards := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardPattern.MatchString(d.Name()) {
			shards = append(shards, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(shards)
	return shards, nil
}

// LoadShards reads every shard beneath root into one flat epoch.
func LoadShards(root string) ([]trainer.Batch, error) {
	paths, err := DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no shards discovered under %s", root)
	}
	var all []trainer.Batch
	for _, path := range paths {
		batches, err := ReadShard(path)
		if err != nil {
			return nil, err
		}
		all = append(all, batches...)
	}
	return all, nil
}
