// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	value := map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("iteration %d produced different bytes", i)
		}
	}
}

func TestRoundTripStruct(t *testing.T) {
	t.Parallel()

	type record struct {
		Koid  uint64 `cbor:"koid"`
		Name  string `cbor:"name"`
		State string `cbor:"state"`
	}
	original := record{Koid: 1024, Name: "initial-thread", State: "running"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"koid": uint64(7)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type: got %T, want map[string]any", decoded)
	}
	if _, present := asMap["koid"]; !present {
		t.Error("decoded map missing key")
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"one", "two", "three"} {
		if err := encoder.Encode(name); err != nil {
			t.Fatalf("Encode(%q): %v", name, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"one", "two", "three"} {
		var got string
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Errorf("stream: got %q, want %q", got, want)
		}
	}
}
