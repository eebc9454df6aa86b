package writer

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/FilippoBovo/betfair-data/logger"
)

// Package compresses a finished facet store directory into a single ZIP
// archive and removes the directory. The archive holds the store files under
// the directory's base name.
func Package(storeDir, zipPath string) error {
	log := logger.GetLogger().WithComponent("archive").WithFields(logger.Fields{
		"store_dir": storeDir,
		"zip_path":  zipPath,
	})
	log.Info("packaging facet store")

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	base := filepath.Base(storeDir)

	err = filepath.WalkDir(storeDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(storeDir, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(filepath.Join(base, rel)))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive store directory: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.RemoveAll(storeDir); err != nil {
		return fmt.Errorf("failed to remove store directory: %w", err)
	}

	log.Info("facet store packaged")
	return nil
}

// Unpack extracts a ZIP archive produced by Package and returns the path of
// the extracted store directory.
func Unpack(zipPath, destDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var storeDir string
	for _, file := range zr.File {
		rel := filepath.FromSlash(file.Name)
		if rel == "" || filepath.IsAbs(rel) || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
			return "", fmt.Errorf("archive member has unsafe path: %s", file.Name)
		}

		target := filepath.Join(destDir, rel)
		if storeDir == "" {
			root := rel
			for dir := filepath.Dir(root); dir != "."; dir = filepath.Dir(dir) {
				root = dir
			}
			storeDir = filepath.Join(destDir, root)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}

		if err := extractFile(file, target); err != nil {
			return "", err
		}
	}

	if storeDir == "" {
		return "", fmt.Errorf("archive %s is empty", zipPath)
	}
	return storeDir, nil
}

func extractFile(file *zip.File, target string) error {
	r, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive member %s: %w", file.Name, err)
	}
	defer r.Close()

	w, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer w.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return w.Close()
}
