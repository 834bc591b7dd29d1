package artifacts

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/funnycal/fulfillment/internal/order"
)

// ErrNoArtifacts means neither a labeled item set nor a raw artifact
// directory could produce any archive content.
var ErrNoArtifacts = errors.New("no files for this order")

// WriteZip streams a zip of the order's artifact directory to w.
func (c *Copier) WriteZip(w io.Writer, o *order.Order, orderID string) error {
	return WriteOrderZip(w, o, c.OrderDir(orderID))
}

// WriteOrderZip streams a zip of the order's artifacts to w. When the
// order record is available, each item gets one top-level folder named
// with its 1-based position, sanitized template name and sanitized folder
// id, e.g. "01_SwimsuitCalendar_f1/". When o is nil (record unreadable)
// the raw directory is zipped unlabeled, matching whatever is on disk.
func WriteOrderZip(w io.Writer, o *order.Order, orderDir string) error {
	zw := zip.NewWriter(w)

	wrote := false
	if o != nil {
		for i, item := range o.Items {
			folder := SanitizeID(item.OutputFolderID)
			if folder == "" {
				continue
			}
			src := filepath.Join(orderDir, folder)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			prefix := fmt.Sprintf("%02d_%s_%s", i+1, SanitizeID(item.TemplateName), folder)
			if err := addDir(zw, src, prefix); err != nil {
				return fmt.Errorf("zip item %d: %w", i+1, err)
			}
			wrote = true
		}
	} else {
		if _, err := os.Stat(orderDir); err != nil {
			return ErrNoArtifacts
		}
		if err := addDir(zw, orderDir, ""); err != nil {
			return fmt.Errorf("zip order dir: %w", err)
		}
		wrote = true
	}

	// Returning before Close keeps the writer from emitting trailer bytes
	// when there was nothing to serve.
	if !wrote {
		return ErrNoArtifacts
	}
	return zw.Close()
}

func addDir(zw *zip.Writer, src, prefix string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if prefix != "" {
			name = prefix + "/" + name
		}

		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(f, in)
		return err
	})
}
