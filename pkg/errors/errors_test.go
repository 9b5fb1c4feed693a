package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "InvalidConfiguration",
			code:    InvalidConfiguration,
			message: "objective weights must sum to 1",
		},
		{
			name:    "ProviderFailed",
			code:    ProviderFailed,
			message: "embedding backend unreachable",
		},
		{
			name:    "DatasetInvalid",
			code:    DatasetInvalid,
			message: "query missing relevance labels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)
			require.True(t, ok, "should be a custom *Error")
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("connection refused")

	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		wrapMsg    string
		expectNil  bool
		expectCode ErrorCode
	}{
		{
			name:       "Wrap normal error",
			err:        originalErr,
			code:       ProviderFailed,
			wrapMsg:    "embedding request failed",
			expectNil:  false,
			expectCode: ProviderFailed,
		},
		{
			name:      "Wrap nil error",
			err:       nil,
			code:      ProviderFailed,
			wrapMsg:   "embedding request failed",
			expectNil: true,
		},
		{
			name:       "Wrap custom error",
			err:        New(DatasetInvalid, "malformed corpus record"),
			code:       InvalidConfiguration,
			wrapMsg:    "run setup failed",
			expectNil:  false,
			expectCode: InvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.code, tt.wrapMsg)

			if tt.expectNil {
				assert.Nil(t, wrapped)
				return
			}

			require.NotNil(t, wrapped)
			ourErr := wrapped.(*Error)
			assert.Equal(t, tt.expectCode, ourErr.Code())
			assert.Contains(t, ourErr.Error(), tt.wrapMsg)

			unwrapped := ourErr.Unwrap()
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), unwrapped.Error())
			}
		})
	}
}

func TestErrorInterfaces(t *testing.T) {
	t.Run("errors.Is matches on code", func(t *testing.T) {
		err1 := New(ProviderFailed, "first")
		err2 := New(ProviderFailed, "second")
		err3 := New(DatasetInvalid, "third")

		assert.True(t, stderrors.Is(err1, err2))
		assert.False(t, stderrors.Is(err1, err3))
	})

	t.Run("errors.As extracts custom type", func(t *testing.T) {
		wrappedErr := Wrap(New(ProviderFailed, "original"), EvaluationDegraded, "wrapped")

		var customErr *Error
		require.True(t, stderrors.As(wrappedErr, &customErr))
		assert.Equal(t, EvaluationDegraded, customErr.Code())
	})

	t.Run("error unwrapping", func(t *testing.T) {
		baseErr := stderrors.New("base error")
		wrapped := Wrap(baseErr, ProviderFailed, "wrapped error")

		unwrapped := stderrors.Unwrap(wrapped)
		assert.Equal(t, baseErr.Error(), unwrapped.Error())
	})
}

func TestErrorString(t *testing.T) {
	t.Run("wrapped chain keeps all messages", func(t *testing.T) {
		err := Wrap(
			Wrap(stderrors.New("dial tcp: refused"), ProviderFailed, "embed call failed"),
			EvaluationDegraded,
			"query q-3 degraded",
		)
		s := err.Error()
		assert.Contains(t, s, "query q-3 degraded")
		assert.Contains(t, s, "embed call failed")
		assert.Contains(t, s, "dial tcp: refused")
	})

	t.Run("fields are rendered", func(t *testing.T) {
		err := WithFields(New(EvaluationDegraded, "degraded evaluation"), Fields{
			"genome_id":    "g-42",
			"degraded":     3,
			"total_queries": 10,
		})
		s := err.Error()
		assert.Contains(t, s, "degraded evaluation")
		assert.Contains(t, s, "genome_id=g-42")
		assert.Contains(t, s, "degraded=3")
	})
}

func TestWithFields(t *testing.T) {
	t.Run("nil error stays nil", func(t *testing.T) {
		assert.Nil(t, WithFields(nil, Fields{"key": "value"}))
	})

	t.Run("plain error is promoted", func(t *testing.T) {
		baseErr := stderrors.New("base error")
		result := WithFields(baseErr, Fields{"context": "test"})

		customErr, ok := result.(*Error)
		require.True(t, ok)
		assert.Equal(t, Unknown, customErr.Code())
		assert.Equal(t, "test", customErr.Fields()["context"])
	})

	t.Run("fields merge and overwrite", func(t *testing.T) {
		err := WithFields(New(ProviderFailed, "test"), Fields{"key": "original", "other": "value"})
		result := WithFields(err, Fields{"key": "overwritten", "new": "added"})

		customErr, ok := result.(*Error)
		require.True(t, ok)
		fields := customErr.Fields()
		assert.Equal(t, "overwritten", fields["key"])
		assert.Equal(t, "value", fields["other"])
		assert.Equal(t, "added", fields["new"])
	})

	t.Run("Fields returns a copy", func(t *testing.T) {
		err := WithFields(New(ProviderFailed, "test"), Fields{"key": "original"})
		customErr := err.(*Error)

		returned := customErr.Fields()
		returned["key"] = "modified"
		assert.Equal(t, "original", customErr.Fields()["key"])
	})
}

func TestHasCode(t *testing.T) {
	base := New(ProviderFailed, "backend down")
	wrapped := Wrap(base, EvaluationDegraded, "evaluation degraded")

	assert.True(t, HasCode(wrapped, EvaluationDegraded))
	assert.True(t, HasCode(wrapped, ProviderFailed))
	assert.False(t, HasCode(wrapped, DatasetInvalid))
	assert.False(t, HasCode(nil, ProviderFailed))
	assert.False(t, HasCode(stderrors.New("plain"), ProviderFailed))
}
