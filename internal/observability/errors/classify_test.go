package errors

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/quiz-ui/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: apperrors.InvalidCredentials("bad"), want: "invalid_credentials"},
		{name: "wrapped app error", err: fmt.Errorf("login: %w", apperrors.Network(context.DeadlineExceeded, "timeout")), want: "network"},
		{name: "path error", err: fmt.Errorf("open: %w", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
