package session

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/pavelanni/practicals/internal/model"
)

func blob(tag string) model.Blob {
	return model.Blob{Name: tag + ".png", Data: []byte(tag)}
}

func outputTags(p model.Practical) []string {
	var tags []string
	for _, o := range p.Outputs {
		tags = append(tags, string(o.Data))
	}
	return tags
}

func TestAddOutputsTruncates(t *testing.T) {
	s := model.NewSession()
	s, dropped, err := AddOutputs(s, 0, blob("A"), blob("B"), blob("C"))
	if err != nil {
		t.Fatalf("AddOutputs: %v", err)
	}
	if dropped != 0 {
		t.Errorf("expected nothing dropped, got %d", dropped)
	}

	s2, dropped, err := AddOutputs(s, 0, blob("D"))
	if err != nil {
		t.Fatalf("AddOutputs: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if got := strings.Join(outputTags(s2.Practicals[0]), ","); got != "A,B,C" {
		t.Errorf("expected A,B,C, got %s", got)
	}
}

func TestAddOutputsKeepsFirstAfterConcat(t *testing.T) {
	s := model.NewSession()
	s, _, _ = AddOutputs(s, 0, blob("A"), blob("B"))
	s, dropped, err := AddOutputs(s, 0, blob("C"), blob("D"), blob("E"))
	if err != nil {
		t.Fatalf("AddOutputs: %v", err)
	}
	if dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", dropped)
	}
	if got := strings.Join(outputTags(s.Practicals[0]), ","); got != "A,B,C" {
		t.Errorf("expected A,B,C, got %s", got)
	}
}

func TestRemoveOutputPreservesOrder(t *testing.T) {
	s := model.NewSession()
	s, _, _ = AddOutputs(s, 0, blob("A"), blob("B"), blob("C"))

	s2, err := RemoveOutput(s, 0, 1)
	if err != nil {
		t.Fatalf("RemoveOutput: %v", err)
	}
	if got := strings.Join(outputTags(s2.Practicals[0]), ","); got != "A,C" {
		t.Errorf("expected A,C, got %s", got)
	}
	// The original value is untouched.
	if got := strings.Join(outputTags(s.Practicals[0]), ","); got != "A,B,C" {
		t.Errorf("original changed to %s", got)
	}

	if _, err := RemoveOutput(s, 0, 3); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
}

func TestSetQuestionCopyOnWrite(t *testing.T) {
	s := model.NewSession()
	s2, err := SetQuestion(s, 0, 0, QuestionCode, "print(1)")
	if err != nil {
		t.Fatalf("SetQuestion: %v", err)
	}
	if s.Practicals[0].Questions[0].Code != "" {
		t.Error("original question was modified")
	}
	if s2.Practicals[0].Questions[0].Code != "print(1)" {
		t.Errorf("expected code set, got %q", s2.Practicals[0].Questions[0].Code)
	}
	if s2.Practicals[0].Questions[0].ID != s.Practicals[0].Questions[0].ID {
		t.Error("question id should survive edits")
	}

	if _, err := SetQuestion(s, 0, 0, QuestionField("bogus"), "x"); !errors.Is(err, ErrField) {
		t.Errorf("expected ErrField, got %v", err)
	}
	if _, err := SetQuestion(s, 0, 5, QuestionCode, "x"); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
}

func TestPracticalLifecycle(t *testing.T) {
	s := model.NewSession()
	s = AddPractical(s)
	s = AddPractical(s)
	if len(s.Practicals) != 3 {
		t.Fatalf("expected 3 practicals, got %d", len(s.Practicals))
	}
	if s.Practicals[2].PracticalNo != "3" {
		t.Errorf("expected practicalNo '3', got %q", s.Practicals[2].PracticalNo)
	}

	s, err := SetPractical(s, 1, PracticalAim, "second")
	if err != nil {
		t.Fatalf("SetPractical: %v", err)
	}
	s, err = RemovePractical(s, 0)
	if err != nil {
		t.Fatalf("RemovePractical: %v", err)
	}
	if s.Practicals[0].Aim != "second" {
		t.Errorf("expected survivor order kept, got aim %q", s.Practicals[0].Aim)
	}

	s, _ = RemovePractical(s, 0)
	if _, err := RemovePractical(s, 0); !errors.Is(err, ErrLastPractical) {
		t.Errorf("expected ErrLastPractical, got %v", err)
	}
}

func TestQuestionLifecycle(t *testing.T) {
	s := model.NewSession()
	s, err := AddQuestion(s, 0)
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	s, _ = AddQuestion(s, 0)
	qs := s.Practicals[0].Questions
	if len(qs) != 3 || qs[1].Number != "2" || qs[2].Number != "3" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	s, err = RemoveQuestion(s, 0, 1)
	if err != nil {
		t.Fatalf("RemoveQuestion: %v", err)
	}
	qs = s.Practicals[0].Questions
	if len(qs) != 2 || qs[0].Number != "1" || qs[1].Number != "3" {
		t.Errorf("unexpected questions after remove %+v", qs)
	}
	if _, err := AddQuestion(s, 7); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		if err := afero.WriteFile(fs, "/work/img/"+name, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src := `
student:
  name: Jane Doe
  rollNo: "42"
  course: CS101
practicals:
  - practicalNo: "1"
    aim: Test sort
    questions:
      - number: "1"
        questionText: Sort an array
        code: "for i in arr:\n  print(i)"
    outputs: [a.png]
    conclusion: Works
  - practicalNo: "2"
    aim: Second
    outputs: [a.png, b.png, c.png, d.png]
`
	s, err := Load(fs, strings.NewReader(src), "/work/img")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Student.Name != "Jane Doe" || s.Student.RollNo != "42" || s.Student.Course != "CS101" {
		t.Errorf("unexpected student %+v", s.Student)
	}
	if len(s.Practicals) != 2 {
		t.Fatalf("expected 2 practicals, got %d", len(s.Practicals))
	}
	p0 := s.Practicals[0]
	if p0.Aim != "Test sort" || p0.Conclusion != "Works" {
		t.Errorf("unexpected practical %+v", p0)
	}
	if len(p0.Questions) != 1 || p0.Questions[0].Code != "for i in arr:\n  print(i)" {
		t.Errorf("unexpected questions %+v", p0.Questions)
	}
	if p0.Questions[0].ID == "" {
		t.Error("loaded question should get an id")
	}
	if len(p0.Outputs) != 1 || !bytes.Equal(p0.Outputs[0].Data, []byte("a.png")) {
		t.Errorf("unexpected outputs %+v", p0.Outputs)
	}

	p1 := s.Practicals[1]
	if len(p1.Questions) != 0 {
		t.Errorf("expected no questions, got %d", len(p1.Questions))
	}
	if got := strings.Join(outputTags(p1), ","); got != "a.png,b.png,c.png" {
		t.Errorf("expected first three outputs, got %s", got)
	}
}

func TestLoadMissingImage(t *testing.T) {
	src := "practicals:\n  - practicalNo: \"1\"\n    outputs: [missing.png]\n"
	_, err := Load(afero.NewMemMapFs(), strings.NewReader(src), "/work")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing image error, got %v", err)
	}
}

func TestLoadFileResolvesRelativeOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := "student:\n  name: A\n  rollNo: \"1\"\n  course: C\npracticals:\n  - practicalNo: \"1\"\n    outputs: [shots/out.png, /abs/out.png]\n"
	for path, data := range map[string]string{
		"/work/session.yaml":  src,
		"/work/shots/out.png": "rel",
		"/abs/out.png":        "abs",
	} {
		if err := afero.WriteFile(fs, path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s, err := LoadFile(fs, "/work/session.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := strings.Join(outputTags(s.Practicals[0]), ","); got != "rel,abs" {
		t.Errorf("unexpected outputs %s", got)
	}
	if name := s.Practicals[0].Outputs[0].Name; name != "out.png" {
		t.Errorf("unexpected output name %q", name)
	}

	if _, err := LoadFile(fs, "/work/absent.yaml"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
