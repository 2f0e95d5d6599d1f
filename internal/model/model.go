package model

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// MaxOutputs is the number of output images a practical can hold.
const MaxOutputs = 3

var validate = validator.New(validator.WithRequiredStructEnabled())

// StudentData identifies the author of the record. It is printed in every page header.
type StudentData struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	RollNo string `json:"rollNo" yaml:"rollNo" validate:"required"`
	Course string `json:"course" yaml:"course" validate:"required"`
}

// Validate reports every missing student field.
func (sd StudentData) Validate() error {
	err := validate.Struct(sd)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var all error
	for _, fe := range verrs {
		all = multierr.Append(all, fmt.Errorf("%s is %s", fe.Field(), fe.Tag()))
	}
	return all
}

// Question is one exercise item within a practical.
type Question struct {
	ID           string `json:"id" yaml:"-"`
	Number       string `json:"number" yaml:"number"`
	QuestionText string `json:"questionText" yaml:"questionText"`
	Code         string `json:"code" yaml:"code"`
}

// Blob is an image attachment. Name and ContentType are advisory.
type Blob struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// Practical is one lab exercise record.
type Practical struct {
	PracticalNo string     `json:"practicalNo"`
	Aim         string     `json:"aim"`
	Questions   []Question `json:"questions"`
	Outputs     []Blob     `json:"outputs"`
	Conclusion  string     `json:"conclusion"`
}

// Session is the full set of records being edited.
type Session struct {
	Student    StudentData `json:"studentData"`
	Practicals []Practical `json:"practicals"`
}

// Equal compares two sessions by exported content. Question IDs and blob
// metadata are ignored; blob bytes are compared.
func (s Session) Equal(o Session) bool {
	if s.Student != o.Student || len(s.Practicals) != len(o.Practicals) {
		return false
	}
	for i := range s.Practicals {
		if !s.Practicals[i].equal(o.Practicals[i]) {
			return false
		}
	}
	return true
}

func (p Practical) equal(o Practical) bool {
	if p.PracticalNo != o.PracticalNo || p.Aim != o.Aim || p.Conclusion != o.Conclusion {
		return false
	}
	if len(p.Questions) != len(o.Questions) || len(p.Outputs) != len(o.Outputs) {
		return false
	}
	for i, q := range p.Questions {
		oq := o.Questions[i]
		if q.Number != oq.Number || q.QuestionText != oq.QuestionText || q.Code != oq.Code {
			return false
		}
	}
	for i, b := range p.Outputs {
		if !bytes.Equal(b.Data, o.Outputs[i].Data) {
			return false
		}
	}
	return true
}
