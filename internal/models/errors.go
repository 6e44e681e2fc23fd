package models

import (
	"fmt"
	"strings"
)

// ResolutionError reports a segmentation file whose transform could not
// be uniquely resolved: either no candidate warp field was found, or
// several were and the matcher refuses to guess between them.
type ResolutionError struct {
	Subject    string
	SegFile    string
	Candidates []string
}

func (e *ResolutionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("subject %s: no transform found for segmentation %s", e.Subject, e.SegFile)
	}
	return fmt.Sprintf("subject %s: ambiguous transform for segmentation %s (candidates: %s)",
		e.Subject, e.SegFile, strings.Join(e.Candidates, ", "))
}

// MissingInputError reports an empty discovery result: no segmentation
// files for a subject and mask kind, or an empty cohort contribution
// after all subjects were processed.
type MissingInputError struct {
	Subject string
	Kind    MaskKind
	Detail  string
}

func (e *MissingInputError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("subject %s: no %s segmentation files found (%s)", e.Subject, e.Kind, e.Detail)
	}
	return fmt.Sprintf("no subject contributed %s data (%s)", e.Kind, e.Detail)
}
