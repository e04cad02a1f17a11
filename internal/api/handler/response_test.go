package handler

import (
	"errors"
	"fmt"
	"testing"

	"cvision/internal/processor"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{processor.NewValidationError("", "bad"), consts.StatusBadRequest},
		{fmt.Errorf("%w: .docx", processor.ErrUnsupportedFormat), consts.StatusBadRequest},
		{processor.ErrFileTooLarge, consts.StatusRequestEntityTooLarge},
		{&processor.PipelineError{Op: "extract", BaseErr: processor.ErrEmptyDocument}, consts.StatusUnprocessableEntity},
		{processor.NewExtractionError("a.pdf", "broken xref"), consts.StatusUnprocessableEntity},
		{fmt.Errorf("%w: j1", processor.ErrJobNotFound), consts.StatusNotFound},
		{processor.ErrResumeNotFound, consts.StatusNotFound},
		{processor.ErrJobEmbeddingsMissing, consts.StatusConflict},
		{processor.ErrNotConfigured, consts.StatusServiceUnavailable},
		{processor.NewEmbeddingError("j1", "timeout"), consts.StatusBadGateway},
		{processor.NewStorageError("r1", "save_resume", "deadlock"), consts.StatusInternalServerError},
		{errors.New("boom"), consts.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
