package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Grade is the letter grade derived from a score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// GradeFor maps a 0-100 score to a letter.
func GradeFor(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeE
	}
}

// Elapsed is a quiz duration serialized as MM:SS.
type Elapsed time.Duration

func (e Elapsed) String() string {
	total := int(time.Duration(e) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func (e Elapsed) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Elapsed) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("elapsed: %w", err)
	}
	var minutes, seconds int
	if _, err := fmt.Sscanf(raw, "%d:%d", &minutes, &seconds); err != nil {
		return fmt.Errorf("elapsed %q: %w", raw, err)
	}
	*e = Elapsed(time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second)
	return nil
}
