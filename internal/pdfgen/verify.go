package pdfgen

import (
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Configuration returns a fresh pdfcpu configuration that never touches the
// user config directory and does not write object or xref streams.
func Configuration() *model.Configuration {
	disableConfigDir.Do(func() {
		model.ConfigPath = "disable"
	})

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	Configuration()

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return ctx.PageCount, nil
}

// Validate checks the file exists, is non-empty and passes pdfcpu validation.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("PDF file is empty: %s", path)
	}
	if err := api.ValidateFile(path, Configuration()); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	return nil
}
