package segment

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// storedValue is the on-disk form of one stored field value.
type storedValue struct {
	Field uint32           `msgpack:"f"`
	Type  schema.FieldType `msgpack:"t"`
	Str   string           `msgpack:"s,omitempty"`
	U64   uint64           `msgpack:"u,omitempty"`
	I64   int64            `msgpack:"i,omitempty"`
	F64   float64          `msgpack:"x,omitempty"`
	Bytes []byte           `msgpack:"b,omitempty"`
}

func toStored(fv document.FieldValue) storedValue {
	sv := storedValue{Field: uint32(fv.Field), Type: fv.Value.Type()}
	switch fv.Value.Type() {
	case schema.Text:
		sv.Str, _ = fv.Value.Text()
	case schema.U64:
		sv.U64, _ = fv.Value.U64()
	case schema.I64:
		sv.I64, _ = fv.Value.I64()
	case schema.F64:
		sv.F64, _ = fv.Value.F64()
	case schema.Date:
		d, _ := fv.Value.Date()
		sv.I64 = d.UnixMicro()
	case schema.Facet:
		f, _ := fv.Value.Facet()
		sv.Str = f.ToPathStr()
	case schema.Bytes:
		sv.Bytes, _ = fv.Value.Bytes()
	}
	return sv
}

func (sv storedValue) value() (document.Value, error) {
	switch sv.Type {
	case schema.Text:
		return document.TextValue(sv.Str), nil
	case schema.U64:
		return document.U64Value(sv.U64), nil
	case schema.I64:
		return document.I64Value(sv.I64), nil
	case schema.F64:
		return document.F64Value(sv.F64), nil
	case schema.Date:
		return document.DateValue(time.UnixMicro(sv.I64)), nil
	case schema.Facet:
		f, err := document.FacetFromString(sv.Str)
		if err != nil {
			return document.Value{}, err
		}
		return document.FacetValue(f), nil
	case schema.Bytes:
		return document.BytesValue(sv.Bytes), nil
	}
	return document.Value{}, fmt.Errorf("%w: unknown stored value type %d", apperrors.ErrIO, sv.Type)
}
