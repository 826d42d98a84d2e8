package csvio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/pkg/model"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// newReader strips a leading byte order mark and reads fields separated
// by delim. Rows may be ragged.
func newReader(in io.Reader, delim rune) gocsv.CSVReader {
	br := bufio.NewReader(in)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	r := csv.NewReader(br)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func unmarshal[T any](in io.Reader, delim rune, what string) ([]T, error) {
	var rows []T
	if err := gocsv.UnmarshalCSV(newReader(in, delim), &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", what, err)
	}
	return rows, nil
}

// ReadCatalog parses the section export. Row numbers count the header as
// line 1.
func ReadCatalog(in io.Reader, delim rune) ([]model.CatalogRecord, error) {
	rows, err := unmarshal[model.CatalogRecord](in, delim, "catalog")
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Row = i + 2
	}
	return rows, nil
}

// LoadCatalog reads the section export at path.
func LoadCatalog(ctx context.Context, path string, delim rune) ([]model.CatalogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	rows, err := ReadCatalog(f, delim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.FromContext(ctx).WithName("csvio").Info("catalog loaded", "file", path, "rows", len(rows))
	return rows, nil
}

// ReadStudents parses the preference sheet into students.
func ReadStudents(ctx context.Context, in io.Reader, delim rune) ([]*model.Student, error) {
	rows, err := unmarshal[model.StudentRecord](in, delim, "students")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Student, len(rows))
	for i := range rows {
		rows[i].Row = i + 2
		out[i] = ToStudent(ctx, &rows[i])
	}
	return out, nil
}

// LoadStudents reads the preference sheet at path.
func LoadStudents(ctx context.Context, path string, delim rune) ([]*model.Student, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open students: %w", err)
	}
	defer f.Close()

	students, err := ReadStudents(ctx, f, delim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.FromContext(ctx).WithName("csvio").Info("students loaded", "file", path, "students", len(students))
	return students, nil
}

// ToStudent maps a sheet row to a student. Exam cells are NAME*SCORE;
// malformed ones are logged and skipped.
func ToStudent(ctx context.Context, rec *model.StudentRecord) *model.Student {
	logger := logging.FromContext(ctx).WithName("csvio")

	s := &model.Student{
		ID:                strings.TrimSpace(rec.ID),
		Name:              rec.Name,
		Email:             rec.Email,
		Requests:          rec.Requests(),
		PlacementText:     rec.Placements,
		MajorInterest:     "1) " + rec.Area1 + " 2) " + rec.Area2 + " 3) " + rec.Area3,
		StudentType:       "01 (Full Time)",
		GraduateEducation: rec.GraduateEducation,
	}
	if strings.Contains(strings.ToLower(rec.HEOP), "y") {
		s.StudentType = "02 (Full Time HEOP)"
	}
	for _, cell := range rec.Exams() {
		e, err := parseExam(cell)
		if err != nil {
			logger.Info("skipping exam score", "student", s.ID, "row", rec.Row, "value", cell, "reason", err.Error())
			continue
		}
		s.Exams = append(s.Exams, e)
	}
	return s
}

func parseExam(cell string) (model.ExamScore, error) {
	name, score, ok := strings.Cut(cell, "*")
	if !ok {
		return model.ExamScore{}, errors.New("missing *")
	}
	n, err := strconv.Atoi(strings.TrimSpace(score))
	if err != nil {
		return model.ExamScore{}, fmt.Errorf("score %q is not a number", score)
	}
	return model.ExamScore{Exam: strings.TrimSpace(name), Score: n}, nil
}
