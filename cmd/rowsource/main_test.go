package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/model"
	"github.com/koustreak/rowsource/internal/source"
)

// stubSource serves fixed rows. The embedded interface is nil, so only the
// methods dumpRows uses are available.
type stubSource struct {
	source.RowSource
	rows     []source.Row
	nextErr  error
	closeErr error
	closed   bool
}

func (s *stubSource) Open(context.Context) error { return nil }

func (s *stubSource) NextRow() (source.Row, error) {
	if len(s.rows) == 0 {
		return nil, s.nextErr
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	return row, nil
}

func (s *stubSource) Model(context.Context) (*model.TableModel, error) {
	return model.NewGenericStringModel("items", []string{"sku", "qty"}, []int{0})
}

func (s *stubSource) Close() error {
	s.closed = true
	return s.closeErr
}

func TestDumpRows(t *testing.T) {
	src := &stubSource{rows: []source.Row{{"a", int64(1)}, {"b", int64(2)}, {"c", int64(3)}}}
	var out bytes.Buffer

	require.NoError(t, dumpRows(context.Background(), src, 2, true, &out))
	assert.Equal(t, "[\"sku\",\"qty\"]\n[\"a\",1]\n[\"b\",2]\n", out.String())
	assert.True(t, src.closed)
}

func TestDumpRows_CloseErrorIsReturned(t *testing.T) {
	closeErr := errs.New(errs.ErrKindResourceFailed, "release workbook")

	tests := []struct {
		name    string
		nextErr error
	}{
		{"after clean read", nil},
		{"after read failure", errs.New(errs.ErrKindParse, "bad cell")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{rows: []source.Row{{"a", int64(1)}}, nextErr: tt.nextErr, closeErr: closeErr}

			err := dumpRows(context.Background(), src, 0, false, &bytes.Buffer{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, closeErr))
			if tt.nextErr != nil {
				assert.True(t, errors.Is(err, tt.nextErr))
			}
		})
	}
}
