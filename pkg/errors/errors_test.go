package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, 1, ExitCodeOf(stderrors.New("boom")))
	assert.Equal(t, 51, ExitCodeOf(New(AlreadyInstalled, "already installed")))

	wrapped := fmt.Errorf("install failed: %w", New(InstalledViaOtherMethod, "other method"))
	assert.Equal(t, 52, ExitCodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(Failure, "failed to write", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "failed to write: disk full", err.Error())
}
