package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/rhyrak/go-registrar/pkg/model"
)

func marshal[T any](out io.Writer, rows []T, delim rune) error {
	w := csv.NewWriter(out)
	w.Comma = delim
	return gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(w))
}

// exportFile replaces path with the output of write.
func exportFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func WriteAssignments(out io.Writer, rows []model.AssignmentRow, delim rune) error {
	return marshal(out, rows, delim)
}

// ExportAssignments writes one row per student and section to path.
func ExportAssignments(path string, rows []model.AssignmentRow, delim rune) error {
	return exportFile(path, func(w io.Writer) error {
		return WriteAssignments(w, rows, delim)
	})
}

func WriteSeats(out io.Writer, rows []model.SeatRow, delim rune) error {
	return marshal(out, rows, delim)
}

// ExportSeats writes the remaining seats of every section to path.
func ExportSeats(path string, rows []model.SeatRow, delim rune) error {
	return exportFile(path, func(w io.Writer) error {
		return WriteSeats(w, rows, delim)
	})
}

// ExportText writes a text report to path.
func ExportText(path string, write func(io.Writer) error) error {
	return exportFile(path, write)
}
