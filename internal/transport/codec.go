// Package transport flattens a session into named fields and binary parts and
// rebuilds it on the receiving side.
//
// The encoding carries no list lengths. The decoder tries ordinals 0, 1, 2...
// at every nesting level and stops at the first absent key, so the encoder
// must number practicals, questions and outputs densely from zero.
package transport

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pavelanni/practicals/internal/model"
)

// Top-level student keys.
const (
	KeyName   = "name"
	KeyRollNo = "rollNo"
	KeyCourse = "course"
)

var (
	// ErrStructure marks an inconsistent flattened submission.
	ErrStructure = errors.New("inconsistent submission")
	// ErrTooLarge is returned when a submission exceeds the configured size.
	ErrTooLarge = errors.New("submission too large")
)

// StructureError describes the key that made a submission inconsistent.
type StructureError struct {
	Key    string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrStructure, e.Key, e.Reason)
}

func (e *StructureError) Unwrap() error { return ErrStructure }

// Field is a named text value.
type Field struct {
	Name  string
	Value string
}

// Part is a named binary attachment.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// Form is an ordered list of fields and parts. Lookups return the first
// entry with a given name.
type Form struct {
	Fields []Field
	Parts  []Part
}

// AddField appends a text field.
func (f *Form) AddField(name, value string) {
	f.Fields = append(f.Fields, Field{Name: name, Value: value})
}

// AddPart appends a binary part.
func (f *Form) AddPart(p Part) {
	f.Parts = append(f.Parts, p)
}

// Value returns the first field called name.
func (f *Form) Value(name string) (string, bool) {
	for _, fl := range f.Fields {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return "", false
}

// Part returns the first part called name.
func (f *Form) Part(name string) (Part, bool) {
	for _, p := range f.Parts {
		if p.Name == name {
			return p, true
		}
	}
	return Part{}, false
}

func practicalKey(p int, field string) string {
	return "practical_" + strconv.Itoa(p) + "_" + field
}

func questionKey(p, q int, field string) string {
	return practicalKey(p, "question_"+strconv.Itoa(q)+"_"+field)
}

func outputKey(p, o int) string {
	return practicalKey(p, "output_"+strconv.Itoa(o))
}

// Flatten encodes a session. Question IDs are not transported.
func Flatten(s model.Session) *Form {
	f := &Form{}
	f.AddField(KeyName, s.Student.Name)
	f.AddField(KeyRollNo, s.Student.RollNo)
	f.AddField(KeyCourse, s.Student.Course)

	for p, pr := range s.Practicals {
		f.AddField(practicalKey(p, "no"), pr.PracticalNo)
		f.AddField(practicalKey(p, "aim"), pr.Aim)
		f.AddField(practicalKey(p, "conclusion"), pr.Conclusion)
		for q, qu := range pr.Questions {
			f.AddField(questionKey(p, q, "number"), qu.Number)
			f.AddField(questionKey(p, q, "questionText"), qu.QuestionText)
			f.AddField(questionKey(p, q, "code"), qu.Code)
		}
		for o, out := range pr.Outputs {
			ct := out.ContentType
			if ct == "" {
				ct = model.SniffImageType(out.Data)
			}
			f.AddPart(Part{
				Name:        outputKey(p, o),
				Filename:    fmt.Sprintf("output_%d.%s", o, model.ImageExtension(ct)),
				ContentType: ct,
				Data:        out.Data,
			})
		}
	}
	return f
}

var ordinalKey = regexp.MustCompile(`^practical_\d+_`)

// index maps each field and part name to its first occurrence.
type index struct {
	fields map[string]int
	parts  map[string]int
}

func newIndex(f *Form) index {
	ix := index{
		fields: make(map[string]int, len(f.Fields)),
		parts:  make(map[string]int, len(f.Parts)),
	}
	for i, fl := range f.Fields {
		if _, ok := ix.fields[fl.Name]; !ok {
			ix.fields[fl.Name] = i
		}
	}
	for i, p := range f.Parts {
		if _, ok := ix.parts[p.Name]; !ok {
			ix.parts[p.Name] = i
		}
	}
	return ix
}

// Reconstruct rebuilds a session from a flattened form. A practical or
// question is discovered when any of its scalar keys is present; all of its
// scalar keys must then be present. Ordinal keys left over after enumeration
// lie beyond a gap and are rejected. Runs in time linear in the form size.
func Reconstruct(f *Form) (model.Session, error) {
	ix := newIndex(f)
	used := make(map[string]bool)
	get := func(key string) (string, bool) {
		i, ok := ix.fields[key]
		if !ok {
			return "", false
		}
		used[key] = true
		return f.Fields[i].Value, true
	}
	require := func(key, sibling string) (string, error) {
		v, ok := get(key)
		if !ok {
			return "", &StructureError{Key: key, Reason: "missing while " + sibling + " is present"}
		}
		return v, nil
	}
	firstPresent := func(keys []string) string {
		for _, k := range keys {
			if _, ok := ix.fields[k]; ok {
				return k
			}
		}
		return ""
	}

	var s model.Session
	for _, k := range []struct {
		key string
		dst *string
	}{
		{KeyName, &s.Student.Name},
		{KeyRollNo, &s.Student.RollNo},
		{KeyCourse, &s.Student.Course},
	} {
		v, ok := get(k.key)
		if !ok {
			return model.Session{}, &StructureError{Key: k.key, Reason: "missing"}
		}
		*k.dst = v
	}

	for p := 0; ; p++ {
		keys := [3]string{practicalKey(p, "no"), practicalKey(p, "aim"), practicalKey(p, "conclusion")}
		found := firstPresent(keys[:])
		if found == "" {
			break
		}
		var vals [3]string
		for i, key := range keys {
			v, err := require(key, found)
			if err != nil {
				return model.Session{}, err
			}
			vals[i] = v
		}
		pr := model.Practical{
			PracticalNo: vals[0],
			Aim:         vals[1],
			Conclusion:  vals[2],
			Questions:   []model.Question{},
			Outputs:     []model.Blob{},
		}

		for q := 0; ; q++ {
			qkeys := [3]string{questionKey(p, q, "number"), questionKey(p, q, "questionText"), questionKey(p, q, "code")}
			qfound := firstPresent(qkeys[:])
			if qfound == "" {
				break
			}
			var qvals [3]string
			for i, key := range qkeys {
				v, err := require(key, qfound)
				if err != nil {
					return model.Session{}, err
				}
				qvals[i] = v
			}
			pr.Questions = append(pr.Questions, model.Question{
				Number:       qvals[0],
				QuestionText: qvals[1],
				Code:         qvals[2],
			})
		}

		for o := 0; ; o++ {
			i, ok := ix.parts[outputKey(p, o)]
			if !ok {
				break
			}
			part := f.Parts[i]
			used[part.Name] = true
			pr.Outputs = append(pr.Outputs, model.Blob{
				Name:        part.Filename,
				ContentType: part.ContentType,
				Data:        part.Data,
			})
		}

		s.Practicals = append(s.Practicals, pr)
	}

	for _, fl := range f.Fields {
		if ordinalKey.MatchString(fl.Name) && !used[fl.Name] {
			return model.Session{}, &StructureError{Key: fl.Name, Reason: "not reachable from ordinal 0"}
		}
	}
	for _, p := range f.Parts {
		if ordinalKey.MatchString(p.Name) && !used[p.Name] {
			return model.Session{}, &StructureError{Key: p.Name, Reason: "not reachable from ordinal 0"}
		}
	}
	return s, nil
}
