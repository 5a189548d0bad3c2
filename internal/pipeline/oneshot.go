package pipeline

import (
	"os"

	"bidintake/internal"
)

// Inspection is a dry run of parse, classify and extract over one message.
// Nothing is persisted and no project ID is allocated.
type Inspection struct {
	Message internal.ClassifiedMessage
	Fields  internal.ExtractedFields
}

func InspectRaw(raw []byte) (Inspection, error) {
	msg, err := Parse(raw)
	if err != nil {
		return Inspection{}, err
	}
	classified := Classify(msg)
	out := Inspection{Message: classified}
	if !classified.IsBidCandidate {
		return out, nil
	}
	out.Fields = ExtractFields(msg)
	return out, nil
}

func InspectFile(path string) (Inspection, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Inspection{}, err
	}
	return InspectRaw(blob)
}
