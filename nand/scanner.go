package nand

import (
	"fmt"
	"path"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/sirupsen/logrus"

	"github.com/XorTroll/pegasus/fs/hostfs"
)

// contentDir is where registered NCAs live beneath a NAND/SD root.
const contentDir = "Contents/registered"

// Scanner walks a storage root's registered-content directory, decoding
// every NCA header it finds into a ContentIndex, and writes each decoded
// header to a badger-backed cache under its own freshly generated UUID
// key. Nothing in this module reads the cache back; every Scan re-reads
// every NCA.
type Scanner struct {
	storage StorageId
	fs      *hostfs.Fs
	index   *ContentIndex
	cache   *badger.DB
}

// NewScanner builds a Scanner over root for the given storage partition,
// opening (or creating) a badger database at cacheDir for its header
// cache.
func NewScanner(storage StorageId, root, cacheDir string) (*Scanner, error) {
	db, err := badger.Open(badger.DefaultOptions(cacheDir))
	if err != nil {
		return nil, fmt.Errorf("nand: opening header cache: %w", err)
	}
	return &Scanner{
		storage: storage,
		fs:      hostfs.NewOsFs(root),
		index:   NewContentIndex(),
		cache:   db,
	}, nil
}

// Close releases the scanner's badger handle.
func (s *Scanner) Close() error {
	return s.cache.Close()
}

// Index returns the catalogue built by the most recent Scan.
func (s *Scanner) Index() *ContentIndex { return s.index }

// Scan walks contentDir, decoding every *.nca file's header and
// recording it both in the in-memory ContentIndex and the on-disk
// header cache. It does not fail the whole pass on one bad file: a
// corrupt NCA is logged and skipped, matching the "best-effort catalogue"
// nature of a collaborator-contract-only NAND layer.
func (s *Scanner) Scan() error {
	entries, err := s.fs.ReadDir(contentDir)
	if err != nil {
		return fmt.Errorf("nand: reading %s: %w", contentDir, err)
	}

	for _, fi := range entries {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".nca") {
			continue
		}
		if err := s.scanOne(path.Join(contentDir, fi.Name())); err != nil {
			logrus.Warnf("nand: skipping %s: %v", fi.Name(), err)
		}
	}
	return nil
}

func (s *Scanner) scanOne(relPath string) error {
	f, err := s.fs.Open(relPath)
	if err != nil {
		return err
	}
	defer f.Close()

	raw := make([]byte, 0x220)
	if _, err := f.Read(raw); err != nil {
		return err
	}

	hdr, err := ParseNCAHeader(raw)
	if err != nil {
		return err
	}

	entry := ContentEntry{
		Storage:     s.storage,
		ProgramID:   hdr.ProgramID,
		ContentType: hdr.ContentType,
		Path:        relPath,
		Size:        hdr.ContentSize,
	}
	s.index.Insert(entry)
	return s.cacheHeader(relPath, hdr)
}

func (s *Scanner) cacheHeader(relPath string, hdr *NCAHeader) error {
	token, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("nand: generating cache key: %w", err)
	}
	key := []byte("nca-header:" + token)
	val := []byte(fmt.Sprintf("%s|%d|%d|%d", relPath, hdr.ProgramID, hdr.ContentType, hdr.ContentSize))
	return s.cache.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}
