package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/types"
)

// Fixed output file names.
const (
	MonoFileName = "mono.pdf"
	DualFileName = "dual.pdf"
)

// verify checks the composed file at path is a valid PDF with want pages.
func verify(path, name string, want int) error {
	if err := pdfgen.Validate(path); err != nil {
		return types.NewAppError(types.ErrPersistenceFailure, "failed to verify "+name, err)
	}
	n, err := pdfgen.PageCount(path)
	if err != nil {
		return types.NewAppError(types.ErrPersistenceFailure, "failed to verify "+name, err)
	}
	if n != want {
		return types.NewAppErrorWithDetails(types.ErrPersistenceFailure, "failed to verify "+name,
			fmt.Sprintf("expected %d pages, file has %d", want, n), nil)
	}
	return nil
}

// moveFile renames src to dst, copying when a rename is not possible
// (e.g. across file systems).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	os.Remove(src)
	return nil
}

func publish(src, outputDir, name string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", types.NewAppError(types.ErrPersistenceFailure, "cannot create output directory", err)
	}
	dst := filepath.Join(outputDir, name)
	if err := moveFile(src, dst); err != nil {
		return "", types.NewAppError(types.ErrPersistenceFailure, "failed to move "+name+" into output directory", err)
	}
	logger.Info("output written", logger.String("path", dst))
	return dst, nil
}
