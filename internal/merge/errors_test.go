package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"canceled sentinel", fmt.Errorf("run: %w", ErrCanceled), KindCanceled},
		{"context canceled", context.Canceled, KindCanceled},
		{"auth expired", fmt.Errorf("fetch: %w", &AuthExpiredError{Source: "docs"}), KindAuthExpired},
		{"insufficient data", &InsufficientDataError{Rows: 1}, KindFatal},
		{"template unavailable", &TemplateUnavailableError{TemplateID: "t", Reason: TemplateNotFound, StatusCode: 404}, KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("503"))))
	assert.True(t, IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(Transient(&AuthExpiredError{})))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.Nil(t, Transient(nil))
}

func TestErrorMessages(t *testing.T) {
	e := &TemplateUnavailableError{TemplateID: "doc", Reason: TemplateNotFound, StatusCode: 404}
	assert.Equal(t, `template "doc" unavailable (not-found, HTTP 404)`, e.Error())

	pe := &ArtifactProductionError{Sequence: 4, Err: errors.New("quota")}
	assert.Equal(t, "produce artifact 4: quota", pe.Error())
	assert.True(t, IsInsufficientData(fmt.Errorf("load: %w", &InsufficientDataError{})))
}
