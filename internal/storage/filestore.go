package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/order"
)

var (
	ErrOrderExists   = errors.New("order already exists")
	ErrOrderNotFound = errors.New("order not found")
)

// FileStore keeps one JSON record per order under dir, with archived
// records relocated to dir/archive. An order id exists in at most one of
// the two partitions at a time.
type FileStore struct {
	dir        string
	archiveDir string
	locks      *keyedMutex
	cache      *orderCache
	logger     *zap.Logger

	timeNow func() time.Time
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	archiveDir := filepath.Join(dir, "archive")
	for _, d := range []string{dir, archiveDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create orders dir: %w", err)
		}
	}
	return &FileStore{
		dir:        dir,
		archiveDir: archiveDir,
		locks:      newKeyedMutex(),
		cache:      newOrderCache(),
		logger:     logger,
		timeNow:    time.Now,
	}, nil
}

func (s *FileStore) livePath(orderID string) string {
	return filepath.Join(s.dir, orderID+".json")
}

func (s *FileStore) archivePath(orderID string) string {
	return filepath.Join(s.archiveDir, orderID+".json")
}

// Create persists a new order. It fails with ErrOrderExists if the id is
// already present in either partition: silently overwriting a paid order's
// record is the single worst failure mode this system can have.
func (s *FileStore) Create(o *order.Order) error {
	if o.OrderID == "" {
		return errors.New("missing order id")
	}
	unlock := s.locks.lock(o.OrderID)
	defer unlock()

	for _, p := range []string{s.livePath(o.OrderID), s.archivePath(o.OrderID)} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s", ErrOrderExists, o.OrderID)
		}
	}

	if err := s.write(s.livePath(o.OrderID), o); err != nil {
		return fmt.Errorf("persist order %s: %w", o.OrderID, err)
	}
	s.cache.set(o)
	return nil
}

// Get looks in the live partition first and falls back to the archive.
// A malformed record is treated as absent rather than surfaced as a
// hard failure.
func (s *FileStore) Get(orderID string) (*order.Order, error) {
	if o, ok := s.cache.get(orderID); ok {
		return o, nil
	}
	for _, p := range []string{s.livePath(orderID), s.archivePath(orderID)} {
		o, err := s.read(p)
		if err == nil {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}

// Update applies mutate to the live record and persists the result with a
// fresh UpdatedAt. Archived orders are not updatable through this path:
// status changes must happen before archival. The whole read-mutate-write
// sequence runs under the order's lock.
func (s *FileStore) Update(orderID string, mutate func(*order.Order) error) (*order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.read(s.livePath(orderID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.timeNow().UTC()

	if err := s.write(s.livePath(orderID), o); err != nil {
		return nil, fmt.Errorf("persist order %s: %w", orderID, err)
	}
	s.cache.set(o)
	return o, nil
}

// List returns all live orders, newest first. Records that fail to parse
// are skipped so one corrupt file cannot take down the whole listing.
func (s *FileStore) List() ([]*order.Order, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read orders dir: %w", err)
	}

	orders := make([]*order.Order, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		o, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable order record",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Archive atomically relocates the record from the live partition to the
// archive partition. There is no way back.
func (s *FileStore) Archive(orderID string) error {
	unlock := s.locks.lock(orderID)
	defer unlock()

	if err := os.Rename(s.livePath(orderID), s.archivePath(orderID)); err != nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	s.cache.delete(orderID)
	return nil
}

func (s *FileStore) read(path string) (*order.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order record: %w", err)
	}
	if o.OrderID == "" {
		return nil, errors.New("order record missing orderId")
	}
	return &o, nil
}

func (s *FileStore) write(path string, o *order.Order) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
