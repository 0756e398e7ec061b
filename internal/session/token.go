package session

import "github.com/roach88/schoolscreen/internal/screening"

// Token tags an in-flight analysis with the context it was started in.
type Token struct {
	ID        string
	SubjectID string
	Step      screening.StepKey
	Field     screening.Field
}
