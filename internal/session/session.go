// Package session implements editing operations on a model.Session.
//
// Every operation returns a new Session value. Only the slices on the path
// to the changed field are copied; the input session is never modified, so
// values held elsewhere stay valid.
package session

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/pavelanni/practicals/internal/model"
)

var (
	// ErrIndex is returned when a practical, question or output index is out of range.
	ErrIndex = errors.New("index out of range")
	// ErrLastPractical is returned when removing the only remaining practical.
	ErrLastPractical = errors.New("cannot remove the last practical")
	// ErrField is returned for an unknown field selector.
	ErrField = errors.New("unknown field")
)

// StudentField selects a StudentData field.
type StudentField string

const (
	StudentName   StudentField = "name"
	StudentRollNo StudentField = "rollNo"
	StudentCourse StudentField = "course"
)

// PracticalField selects a scalar Practical field.
type PracticalField string

const (
	PracticalNo         PracticalField = "practicalNo"
	PracticalAim        PracticalField = "aim"
	PracticalConclusion PracticalField = "conclusion"
)

// QuestionField selects a Question field.
type QuestionField string

const (
	QuestionNumber QuestionField = "number"
	QuestionText   QuestionField = "questionText"
	QuestionCode   QuestionField = "code"
)

// SetStudent updates one student field.
func SetStudent(s model.Session, field StudentField, value string) (model.Session, error) {
	switch field {
	case StudentName:
		s.Student.Name = value
	case StudentRollNo:
		s.Student.RollNo = value
	case StudentCourse:
		s.Student.Course = value
	default:
		return s, fmt.Errorf("student %q: %w", field, ErrField)
	}
	return s, nil
}

// SetPractical updates one scalar field of practical p.
func SetPractical(s model.Session, p int, field PracticalField, value string) (model.Session, error) {
	return updatePractical(s, p, func(pr *model.Practical) error {
		switch field {
		case PracticalNo:
			pr.PracticalNo = value
		case PracticalAim:
			pr.Aim = value
		case PracticalConclusion:
			pr.Conclusion = value
		default:
			return fmt.Errorf("practical %q: %w", field, ErrField)
		}
		return nil
	})
}

// SetQuestion updates one field of question q in practical p.
func SetQuestion(s model.Session, p, q int, field QuestionField, value string) (model.Session, error) {
	return updatePractical(s, p, func(pr *model.Practical) error {
		if q < 0 || q >= len(pr.Questions) {
			return fmt.Errorf("question %d: %w", q, ErrIndex)
		}
		pr.Questions = slices.Clone(pr.Questions)
		qu := &pr.Questions[q]
		switch field {
		case QuestionNumber:
			qu.Number = value
		case QuestionText:
			qu.QuestionText = value
		case QuestionCode:
			qu.Code = value
		default:
			return fmt.Errorf("question %q: %w", field, ErrField)
		}
		return nil
	})
}

// AddPractical appends a new practical numbered after the current count.
func AddPractical(s model.Session) model.Session {
	next := make([]model.Practical, 0, len(s.Practicals)+1)
	next = append(next, s.Practicals...)
	s.Practicals = append(next, model.NewPractical(strconv.Itoa(len(s.Practicals)+1)))
	return s
}

// RemovePractical removes practical p. The last remaining practical cannot be removed.
func RemovePractical(s model.Session, p int) (model.Session, error) {
	if p < 0 || p >= len(s.Practicals) {
		return s, fmt.Errorf("practical %d: %w", p, ErrIndex)
	}
	if len(s.Practicals) == 1 {
		return s, ErrLastPractical
	}
	s.Practicals = slices.Delete(slices.Clone(s.Practicals), p, p+1)
	return s, nil
}

// AddQuestion appends a new question to practical p numbered after its current count.
func AddQuestion(s model.Session, p int) (model.Session, error) {
	return updatePractical(s, p, func(pr *model.Practical) error {
		next := make([]model.Question, 0, len(pr.Questions)+1)
		next = append(next, pr.Questions...)
		pr.Questions = append(next, model.NewQuestion(strconv.Itoa(len(pr.Questions)+1)))
		return nil
	})
}

// RemoveQuestion removes question q from practical p keeping the order of the rest.
func RemoveQuestion(s model.Session, p, q int) (model.Session, error) {
	return updatePractical(s, p, func(pr *model.Practical) error {
		if q < 0 || q >= len(pr.Questions) {
			return fmt.Errorf("question %d: %w", q, ErrIndex)
		}
		pr.Questions = slices.Delete(slices.Clone(pr.Questions), q, q+1)
		return nil
	})
}

// AddOutputs appends blobs to the outputs of practical p and keeps only the
// first model.MaxOutputs of the combined list. It returns how many of the
// given blobs were dropped.
func AddOutputs(s model.Session, p int, blobs ...model.Blob) (model.Session, int, error) {
	dropped := 0
	s, err := updatePractical(s, p, func(pr *model.Practical) error {
		combined := make([]model.Blob, 0, len(pr.Outputs)+len(blobs))
		combined = append(combined, pr.Outputs...)
		combined = append(combined, blobs...)
		if len(combined) > model.MaxOutputs {
			dropped = len(combined) - model.MaxOutputs
			combined = combined[:model.MaxOutputs:model.MaxOutputs]
		}
		pr.Outputs = combined
		return nil
	})
	return s, dropped, err
}

// RemoveOutput removes output o from practical p keeping the order of the rest.
func RemoveOutput(s model.Session, p, o int) (model.Session, error) {
	return updatePractical(s, p, func(pr *model.Practical) error {
		if o < 0 || o >= len(pr.Outputs) {
			return fmt.Errorf("output %d: %w", o, ErrIndex)
		}
		pr.Outputs = slices.Delete(slices.Clone(pr.Outputs), o, o+1)
		return nil
	})
}

// updatePractical copies the practical list, applies fn to the copy of
// practical p and returns the session holding the new list. fn must clone any
// nested slice it changes.
func updatePractical(s model.Session, p int, fn func(*model.Practical) error) (model.Session, error) {
	if p < 0 || p >= len(s.Practicals) {
		return s, fmt.Errorf("practical %d: %w", p, ErrIndex)
	}
	practicals := slices.Clone(s.Practicals)
	if err := fn(&practicals[p]); err != nil {
		return s, err
	}
	s.Practicals = practicals
	return s, nil
}
