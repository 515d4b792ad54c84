package errors

import (
	"database/sql"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnotatedError(t *testing.T) {
	err := New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := NewSentinel("test error")
	require.NotErrorIs(t, err, NewSentinel("test error"))
	wrapped := Wrap(sentinel, "load chapter", slog.String("chapter_id", "ch01"))
	require.ErrorIs(t, wrapped, sentinel)
	require.Equal(t, "load chapter: test error", wrapped.Error())

	var annotated *AnnotatedError
	require.True(t, As(err, &annotated))

	// Ensure log values are coming through.
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	require.GreaterOrEqual(t, sourceIdx, 0)
	source := group[sourceIdx]
	require.Contains(t, source.Value.String(), "annotatederror_test.go")
}

func TestWrap_collectsInnerAttrs(t *testing.T) {
	inner := Wrap(sql.ErrNoRows, "query summary", slog.String("chapter_id", "ch02"))
	outer := Wrap(inner, "select context", slog.String("project_id", "demo"))

	var annotated *AnnotatedError
	require.True(t, As(outer, &annotated))
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("project_id", "demo"))
	require.Contains(t, group, slog.String("chapter_id", "ch02"))
	require.ErrorIs(t, outer, sql.ErrNoRows)
}

func TestWrap_nil(t *testing.T) {
	require.NoError(t, Wrap(nil, "nothing happened"))
}

func TestMark(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category error
	}{
		{name: "plain error", err: sql.ErrConnDone, category: ErrStorage},
		{name: "annotated error", err: New("bad chapter id"), category: ErrValidation},
		{name: "already categorized", err: Wrap(ErrNotFound, "get card"), category: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marked := Mark(tt.err, tt.category)
			require.ErrorIs(t, marked, tt.category)
			require.ErrorIs(t, marked, tt.err)
			require.Equal(t, tt.err.Error(), marked.Error())
		})
	}
	require.NoError(t, Mark(nil, ErrStorage))
}
