package session

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/practicals/internal/model"
)

// File is the on-disk form of a session. Outputs are image paths relative to
// the file's directory.
type File struct {
	Student    model.StudentData `yaml:"student"`
	Practicals []FilePractical   `yaml:"practicals"`
}

// FilePractical is one practical in a session file.
type FilePractical struct {
	PracticalNo string           `yaml:"practicalNo"`
	Aim         string           `yaml:"aim"`
	Questions   []model.Question `yaml:"questions"`
	Outputs     []string         `yaml:"outputs"`
	Conclusion  string           `yaml:"conclusion"`
}

// LoadFile reads a YAML session file from fs.
func LoadFile(fs afero.Fs, path string) (model.Session, error) {
	f, err := fs.Open(path)
	if err != nil {
		return model.Session{}, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()
	return Load(fs, f, filepath.Dir(path))
}

// Load decodes a YAML session and replays it through the editing operations,
// so output limits apply exactly as they do for interactive edits. Output
// images are read from fs relative to baseDir.
func Load(fs afero.Fs, r io.Reader, baseDir string) (model.Session, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return model.Session{}, fmt.Errorf("decode session: %w", err)
	}

	s := model.NewSession()
	var err error
	for _, field := range []struct {
		f StudentField
		v string
	}{
		{StudentName, file.Student.Name},
		{StudentRollNo, file.Student.RollNo},
		{StudentCourse, file.Student.Course},
	} {
		if s, err = SetStudent(s, field.f, field.v); err != nil {
			return model.Session{}, err
		}
	}

	if len(file.Practicals) == 0 {
		s.Practicals = []model.Practical{}
	}
	for p, fp := range file.Practicals {
		if p > 0 {
			s = AddPractical(s)
		}
		if s, err = loadPractical(fs, s, p, fp, baseDir); err != nil {
			return model.Session{}, fmt.Errorf("practical %d: %w", p, err)
		}
	}
	return s, nil
}

func loadPractical(fs afero.Fs, s model.Session, p int, fp FilePractical, baseDir string) (model.Session, error) {
	var err error
	for _, field := range []struct {
		f PracticalField
		v string
	}{
		{PracticalNo, fp.PracticalNo},
		{PracticalAim, fp.Aim},
		{PracticalConclusion, fp.Conclusion},
	} {
		if s, err = SetPractical(s, p, field.f, field.v); err != nil {
			return s, err
		}
	}

	if len(fp.Questions) == 0 {
		if s, err = RemoveQuestion(s, p, 0); err != nil {
			return s, err
		}
	}
	for q, fq := range fp.Questions {
		if q > 0 {
			if s, err = AddQuestion(s, p); err != nil {
				return s, err
			}
		}
		for _, field := range []struct {
			f QuestionField
			v string
		}{
			{QuestionNumber, fq.Number},
			{QuestionText, fq.QuestionText},
			{QuestionCode, fq.Code},
		} {
			if s, err = SetQuestion(s, p, q, field.f, field.v); err != nil {
				return s, err
			}
		}
	}

	blobs := make([]model.Blob, 0, len(fp.Outputs))
	for _, rel := range fp.Outputs {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, rel)
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return s, fmt.Errorf("read output: %w", err)
		}
		blobs = append(blobs, model.NewBlob(filepath.Base(path), data))
	}
	s, dropped, err := AddOutputs(s, p, blobs...)
	if err != nil {
		return s, err
	}
	if dropped > 0 {
		slog.Warn("output limit reached, extra images dropped",
			"practical", fp.PracticalNo, "max", model.MaxOutputs, "dropped", dropped)
	}
	return s, nil
}
