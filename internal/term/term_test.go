package term

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
)

func TestTermString(t *testing.T) {
	term := FromFieldText(0, "winter")
	assert.Equal(t, "Term(field=0,bytes=[119, 105, 110, 116, 101, 114])", term.String())
	assert.Equal(t, "Term(field=3,bytes=[])", FromFieldText(3, "").String())
}

func TestKeyRoundTrip(t *testing.T) {
	term := FromFieldText(7, "sea")
	key := term.Key()
	assert.Equal(t, []byte{0, 0, 0, 7, 's', 'e', 'a'}, key)

	back, err := FromKey(key)
	require.NoError(t, err)
	assert.True(t, term.Equal(back))

	_, err = FromKey([]byte{1})
	assert.Error(t, err)
}

func TestKeysOrderByFieldThenBytes(t *testing.T) {
	terms := []Term{
		FromFieldText(1, "apple"),
		FromFieldText(0, "zebra"),
		FromFieldText(1, "ant"),
		FromFieldText(0, "ant"),
	}
	sort.Slice(terms, func(i, j int) bool {
		return bytes.Compare(terms[i].Key(), terms[j].Key()) < 0
	})
	for i := 1; i < len(terms); i++ {
		assert.Negative(t, terms[i-1].Compare(terms[i]))
	}
	assert.Equal(t, "zebra", string(terms[1].Bytes))
}

func TestNumericEncodingsPreserveOrder(t *testing.T) {
	ints := []int64{-1 << 62, -5, -1, 0, 1, 42, 1 << 62}
	for i := 1; i < len(ints); i++ {
		assert.Negative(t, bytes.Compare(EncodeI64(ints[i-1]), EncodeI64(ints[i])))
		assert.Equal(t, ints[i], DecodeI64(EncodeI64(ints[i])))
	}

	floats := []float64{-1e300, -2.5, -0.0001, 0, 0.0001, 3.75, 1e300}
	for i := 1; i < len(floats); i++ {
		assert.Negative(t, bytes.Compare(EncodeF64(floats[i-1]), EncodeF64(floats[i])))
		assert.Equal(t, floats[i], DecodeF64(EncodeF64(floats[i])))
	}

	assert.Equal(t, uint64(1937), DecodeU64(EncodeU64(1937)))
}

func TestFromValue(t *testing.T) {
	facet, err := document.FacetFromString("/europe/france")
	require.NoError(t, err)
	date := time.Date(2019, 8, 12, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		val  document.Value
		want Term
	}{
		{"text", document.TextValue("men"), FromFieldText(2, "men")},
		{"u64", document.U64Value(9), FromFieldU64(2, 9)},
		{"i64", document.I64Value(-9), FromFieldI64(2, -9)},
		{"f64", document.F64Value(0.5), FromFieldF64(2, 0.5)},
		{"date", document.DateValue(date), FromFieldI64(2, date.UnixMicro())},
		{"facet", document.FacetValue(facet), Term{Field: 2, Bytes: []byte("europe\x00france")}},
		{"bytes", document.BytesValue([]byte{1, 2}), FromFieldBytes(2, []byte{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromValue(schema.Field(2), tt.val)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "%s != %s", got, tt.want)
		})
	}
}
