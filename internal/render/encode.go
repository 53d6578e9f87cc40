package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("render: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// JSON writes rep as indented JSON.
func JSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

// CBOR writes rep in canonical CBOR, so equal reports encode to equal
// bytes.
func CBOR(w io.Writer, rep Report) error {
	data, err := MarshalReport(rep)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// MarshalReport serializes a Report to canonical CBOR bytes.
func MarshalReport(rep Report) ([]byte, error) {
	data, err := cborEncMode.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("render: marshal report: %w", err)
	}
	return data, nil
}

// UnmarshalReport deserializes a Report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var rep Report
	if err := cbor.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("render: unmarshal report: %w", err)
	}
	return &rep, nil
}
