package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorChain(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("persist: %w", NewAppError(ErrPersistenceFailure, "failed to write dual.pdf", cause))

	assert.Equal(t, ErrPersistenceFailure, CodeOf(err))
	assert.True(t, IsCode(err, ErrPersistenceFailure))
	assert.False(t, IsCode(err, ErrParseFailure))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &AppError{Code: ErrPersistenceFailure})
	assert.Contains(t, err.Error(), "disk full")
}

func TestAppErrorMessage(t *testing.T) {
	err := NewAppErrorWithDetails(ErrInvalidConfiguration, "invalid configuration", "no output requested", nil)
	assert.Equal(t, "invalid configuration: no output requested", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsCode(nil, ErrInternal))
}

func TestParseWatermarkMode(t *testing.T) {
	tests := []struct {
		in      string
		want    WatermarkMode
		wantErr bool
	}{
		{"", Watermarked, false},
		{"watermarked", Watermarked, false},
		{"NO_WATERMARK", NoWatermark, false},
		{"none", NoWatermark, false},
		{"both", Both, false},
		{"stamp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWatermarkMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
