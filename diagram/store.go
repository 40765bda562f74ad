package diagram

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/diagramworks/diagram/protocol"
)

// Store is the persistence collaborator. Save accepts the current model;
// Load returns the stored model or (nil, nil) when none exists.
type Store interface {
	Save(ctx context.Context, clientId string, root *protocol.ModelElement) error
	Load(ctx context.Context, clientId string) (*protocol.ModelElement, error)
}

// snapshot codec: deterministic CBOR so the same model always produces
// identical bytes, zstd-compressed on disk
var snapshotEncMode cbor.EncMode
var snapshotDecMode cbor.DecMode

func init() {
	var err error
	snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	snapshotDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// SnapshotStore keeps one compressed model snapshot file per client under a
// directory.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotStore{
		dir: dir,
	}, nil
}

func (self *SnapshotStore) snapshotPath(clientId string) string {
	safeClientId := strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, clientId)
	return filepath.Join(self.dir, safeClientId+".model.zst")
}

func (self *SnapshotStore) Save(ctx context.Context, clientId string, root *protocol.ModelElement) error {
	snapshotBytes, err := snapshotEncMode.Marshal(root)
	if err != nil {
		return err
	}

	// write to a temp file and rename so a crash never leaves a torn
	// snapshot
	snapshotPath := self.snapshotPath(clientId)
	tempFile, err := os.CreateTemp(self.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tempPath := tempFile.Name()
	writer, err := zstd.NewWriter(tempFile)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return err
	}
	if _, err := writer.Write(snapshotBytes); err != nil {
		writer.Close()
		tempFile.Close()
		os.Remove(tempPath)
		return err
	}
	if err := writer.Close(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return err
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, snapshotPath)
}

func (self *SnapshotStore) Load(ctx context.Context, clientId string) (*protocol.ModelElement, error) {
	file, err := os.Open(self.snapshotPath(clientId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	snapshotBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	root := &protocol.ModelElement{}
	if err := snapshotDecMode.Unmarshal(snapshotBytes, root); err != nil {
		return nil, err
	}
	return root, nil
}
