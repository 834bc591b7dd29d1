package artifacts

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Copier duplicates generated images out of the shared face-swap output
// workspace into an order-scoped area. The workspace grows without bound
// and is cleaned up independently of any order, so the order's copy is
// what actually has to survive.
type Copier struct {
	outputDir     string // generation workspace, transient
	orderFilesDir string // per-order artifact area, durable
	logger        *zap.Logger
}

func NewCopier(outputDir, orderFilesDir string, logger *zap.Logger) *Copier {
	return &Copier{
		outputDir:     outputDir,
		orderFilesDir: orderFilesDir,
		logger:        logger,
	}
}

// OrderDir returns the artifact directory for one order.
func (c *Copier) OrderDir(orderID string) string {
	return filepath.Join(c.orderFilesDir, orderID)
}

// CopyOrderArtifacts copies each referenced output folder into
// orderFilesDir/<orderID>/<folderID>. Missing sources are skipped and a
// failure on one folder does not abort the rest; the operation is
// idempotent. The first error encountered is returned so the caller can
// log it, but by then every copyable folder has been attempted.
func (c *Copier) CopyOrderArtifacts(orderID string, folderIDs []string) error {
	if len(folderIDs) == 0 {
		return nil
	}
	dstRoot := c.OrderDir(orderID)
	if err := os.MkdirAll(dstRoot, 0o755); err != nil {
		return fmt.Errorf("create order files dir: %w", err)
	}

	var firstErr error
	for _, folderID := range folderIDs {
		safe := SanitizeID(folderID)
		if safe == "" {
			continue
		}
		src := filepath.Join(c.outputDir, safe)
		if _, err := os.Stat(src); err != nil {
			c.logger.Warn("output folder missing, skipping",
				zap.String("order_id", orderID), zap.String("folder", safe))
			continue
		}
		if err := copyDir(src, filepath.Join(dstRoot, safe)); err != nil {
			c.logger.Error("artifact copy failed",
				zap.String("order_id", orderID), zap.String("folder", safe), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("copy folder %s: %w", safe, err)
			}
		}
	}
	return firstErr
}

// DeleteOrderFiles removes the order's whole artifact directory. Used on
// archival with file deletion requested; errors are the caller's to
// suppress.
func (c *Copier) DeleteOrderFiles(orderID string) error {
	return os.RemoveAll(c.OrderDir(orderID))
}

// SanitizeID strips every character outside letters, digits, underscore
// and hyphen so the result is safe to use as a path component.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
