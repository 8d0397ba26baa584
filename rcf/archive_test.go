package rcf

import "testing"

type archiveTestPayload struct {
	Message string
	Count   int
}

func TestJSONArchiveRoundTrip(t *testing.T) {
	a := JSONArchive{}
	in := archiveTestPayload{Message: "hi", Count: 3}
	data, err := a.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal: %s", err)
	}
	var out archiveTestPayload
	if err := a.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	if out != in {
		t.Fatalf("Unmarshal = %+v, want %+v", out, in)
	}
	if a.Protocol() != SerializationProtocolText {
		t.Fatalf("Protocol() = %v, want SerializationProtocolText", a.Protocol())
	}
}

func TestGobArchiveRoundTrip(t *testing.T) {
	a := GobArchive{}
	in := archiveTestPayload{Message: "bye", Count: 9}
	data, err := a.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal: %s", err)
	}
	var out archiveTestPayload
	if err := a.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	if out != in {
		t.Fatalf("Unmarshal = %+v, want %+v", out, in)
	}
	if a.Protocol() != SerializationProtocolBinary {
		t.Fatalf("Protocol() = %v, want SerializationProtocolBinary", a.Protocol())
	}
}

func TestArchiveForProtocol(t *testing.T) {
	if _, ok := ArchiveForProtocol(SerializationProtocolText).(JSONArchive); !ok {
		t.Fatalf("ArchiveForProtocol(Text) did not return JSONArchive")
	}
	if _, ok := ArchiveForProtocol(SerializationProtocolBinary).(GobArchive); !ok {
		t.Fatalf("ArchiveForProtocol(Binary) did not return GobArchive")
	}
}
