package rcf

import (
	"bytes"
	"encoding/gob"

	jsoniter "github.com/json-iterator/go"
)

// Archive is RCF's pluggable marshal/unmarshal contract for a method call's
// argument tuple and return values (spec.md section 1 Non-goal (a): "the
// core only consumes an archive interface"). v must be a pointer, matching
// the encoding/json and encoding/gob convention.
type Archive interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Protocol() SerializationProtocol
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONArchive implements Archive with github.com/json-iterator/go, RCF's
// "text" SerializationProtocol (DESIGN.md Data model; grounded on
// rockstar-0000-aistore's use of the same library).
type JSONArchive struct{}

func (JSONArchive) Marshal(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func (JSONArchive) Unmarshal(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}

func (JSONArchive) Protocol() SerializationProtocol {
	return SerializationProtocolText
}

// GobArchive implements Archive with the standard library's encoding/gob,
// RCF's "binary" SerializationProtocol. No codegen-free generic binary
// reflection archive appears anywhere in the retrieval pack (see DESIGN.md),
// so the stdlib's purpose-built answer stands in rather than a hand-rolled
// wire format.
type GobArchive struct{}

func (GobArchive) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobArchive) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (GobArchive) Protocol() SerializationProtocol {
	return SerializationProtocolBinary
}

// ArchiveForProtocol returns the built-in Archive for a SerializationProtocol
// as carried in a Header.
func ArchiveForProtocol(p SerializationProtocol) Archive {
	if p == SerializationProtocolBinary {
		return GobArchive{}
	}
	return JSONArchive{}
}
