package docx

import (
	"strings"

	"github.com/pavelanni/practicals/internal/model"
)

// Fixed labels of the layout.
const (
	HeadingPrefix   = "PRACTICAL No. "
	RollNoPrefix    = "Roll no. "
	AimLabel        = "AIM: "
	CodeLabel       = "Code:"
	OutputLabel     = "OUTPUT:"
	ConclusionLabel = "CONCLUSION:"
)

// Paragraph spacing in twips.
const (
	spaceWide   = 400
	spaceNarrow = 200
)

func text(s string) Run {
	return Run{Text: s, Font: SerifFont, Size: TextSize}
}

func label(s string) Run {
	return Run{Text: s, Font: SerifFont, Size: TextSize, Bold: true, Underline: true}
}

func code(s string) Run {
	return Run{Text: s, Font: MonoFont, Size: TextSize}
}

// Build lays out a session. Practicals follow each other in order, separated
// by forced page breaks; the last one is not followed by a break. Image bytes
// are not inspected.
func Build(s model.Session) *Document {
	doc := &Document{
		Properties: Properties{
			Title:   "Practicals",
			Creator: s.Student.Name,
		},
		Margins: Margins{Top: Inch, Right: Inch, Bottom: Inch, Left: Inch},
		Header: []Paragraph{
			{Align: AlignRight, Runs: []Run{text(s.Student.Name)}},
			{Align: AlignRight, Runs: []Run{text(RollNoPrefix + s.Student.RollNo)}},
			{Align: AlignRight, Runs: []Run{text(s.Student.Course)}},
		},
	}

	for i, pr := range s.Practicals {
		doc.Body = append(doc.Body, practicalBlocks(pr)...)
		if i < len(s.Practicals)-1 {
			doc.Body = append(doc.Body, &PageBreak{})
		}
	}
	return doc
}

func practicalBlocks(pr model.Practical) []Block {
	blocks := []Block{
		&Paragraph{
			Align:        AlignCenter,
			SpacingAfter: spaceWide,
			Runs:         []Run{label(HeadingPrefix), label(pr.PracticalNo)},
		},
		&Paragraph{
			SpacingAfter: spaceWide,
			Runs:         []Run{label(AimLabel), text(pr.Aim)},
		},
	}

	for _, q := range pr.Questions {
		codeLabel := text(CodeLabel)
		codeLabel.Bold = true
		blocks = append(blocks,
			&Paragraph{SpacingAfter: spaceNarrow, Runs: []Run{label("Question " + q.Number + ":")}},
			&Paragraph{SpacingAfter: spaceNarrow, Runs: []Run{text(q.QuestionText)}},
			&Paragraph{SpacingAfter: spaceNarrow, Runs: []Run{codeLabel}},
		)
		// One paragraph per line keeps indentation and blank lines intact.
		for _, line := range strings.Split(q.Code, "\n") {
			blocks = append(blocks, &Paragraph{Runs: []Run{code(line)}})
		}
	}

	blocks = append(blocks, &Paragraph{
		SpacingBefore: spaceWide,
		SpacingAfter:  spaceNarrow,
		Runs:          []Run{label(OutputLabel)},
	})
	for _, out := range pr.Outputs {
		blocks = append(blocks, &Image{Data: out.Data, Width: ImageWidth, Height: ImageHeight})
	}

	blocks = append(blocks,
		&Paragraph{SpacingBefore: spaceWide, SpacingAfter: spaceNarrow, Runs: []Run{label(ConclusionLabel)}},
		&Paragraph{Runs: []Run{text(pr.Conclusion)}},
	)
	return blocks
}
