// Package codec encodes records for the key-value backend. Encoding is CBOR
// with Core Deterministic Encoding, so the same record always yields the
// same bytes.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"heritagestore/pkg/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Opaque snapshot maps decode as map[string]any rather than
		// map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// DecodeRecord decodes a CBOR value stored in collection c.
func DecodeRecord(c domain.Collection, data []byte) (domain.Record, error) {
	return domain.DecodeRecord(c, data, Unmarshal)
}
