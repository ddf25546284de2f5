package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"

	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
)

// Verify reports whether the event is well-formed, its id matches the
// canonical hash, and its signature verifies against id and pubkey.
func Verify(e Event) bool {
	return Check(e) == nil
}

// Check is Verify with a reason. It returns a *MalformedEventError or an
// *InvalidSignatureError.
func Check(e Event) error {
	if err := checkShape(e); err != nil {
		return err
	}

	if id := Hash(e); id != e.ID {
		return &chesserrors.InvalidSignatureError{EventID: e.ID, Reason: "id does not match content hash"}
	}

	pkBytes, _ := hex.DecodeString(e.PubKey)
	pk, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return &chesserrors.InvalidSignatureError{EventID: e.ID, Reason: "pubkey is not a curve point"}
	}
	sigBytes, _ := hex.DecodeString(e.Sig)
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return &chesserrors.InvalidSignatureError{EventID: e.ID, Reason: "unparseable signature"}
	}
	idBytes, _ := hex.DecodeString(e.ID)
	if !sig.Verify(idBytes, pk) {
		return &chesserrors.InvalidSignatureError{EventID: e.ID, Reason: "signature does not verify"}
	}
	return nil
}

// DecodeEvent strictly decodes an event object. Any shape violation
// (missing field, wrong JSON type, non-string tag entry, bad hex) yields a
// *MalformedEventError. It does not check the signature.
func DecodeEvent(raw []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Event{}, malformed("", "not a JSON object")
	}

	var e Event
	var err error
	if e.ID, err = stringField(fields, "id"); err != nil {
		return Event{}, err
	}
	if e.PubKey, err = stringField(fields, "pubkey"); err != nil {
		return Event{}, err
	}
	if e.Sig, err = stringField(fields, "sig"); err != nil {
		return Event{}, err
	}
	if e.Content, err = stringField(fields, "content"); err != nil {
		return Event{}, err
	}

	created, err := intField(fields, "created_at")
	if err != nil {
		return Event{}, err
	}
	e.CreatedAt = nostr.Timestamp(created)

	kind, err := intField(fields, "kind")
	if err != nil {
		return Event{}, err
	}
	if kind > 65535 {
		return Event{}, malformed("kind", "out of range")
	}
	e.Kind = int(kind)

	if e.Tags, err = tagsField(fields); err != nil {
		return Event{}, err
	}

	if err := checkShape(e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// VerifyRaw decodes and verifies in one step.
func VerifyRaw(raw []byte) (Event, error) {
	e, err := DecodeEvent(raw)
	if err != nil {
		return Event{}, err
	}
	if err := Check(e); err != nil {
		return Event{}, err
	}
	return e, nil
}

func checkShape(e Event) error {
	if !isLowerHex(e.ID, 64) {
		return malformed("id", "expected 64 lowercase hex characters")
	}
	if !isLowerHex(e.PubKey, 64) {
		return malformed("pubkey", "expected 64 lowercase hex characters")
	}
	if !isLowerHex(e.Sig, 128) {
		return malformed("sig", "expected 128 lowercase hex characters")
	}
	if e.CreatedAt < 0 {
		return malformed("created_at", "negative timestamp")
	}
	if e.Kind < 0 || e.Kind > 65535 {
		return malformed("kind", "out of range")
	}
	return nil
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", malformed(name, "missing")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", malformed(name, "not a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed(name, "not a string")
	}
	return s, nil
}

func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, malformed(name, "missing")
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, malformed(name, "not an integer")
	}
	if n < 0 {
		return 0, malformed(name, "negative")
	}
	return n, nil
}

func tagsField(fields map[string]json.RawMessage) (nostr.Tags, error) {
	raw, ok := fields["tags"]
	if !ok {
		return nil, malformed("tags", "missing")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, malformed("tags", "not an array")
	}
	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, malformed("tags", "not an array")
	}

	tags := make(nostr.Tags, 0, len(outer))
	for _, item := range outer {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '[' {
			return nil, malformed("tags", "tag is not an array")
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(item, &entries); err != nil {
			return nil, malformed("tags", "tag is not an array")
		}
		tag := make(nostr.Tag, 0, len(entries))
		for _, entry := range entries {
			entry = bytes.TrimSpace(entry)
			if len(entry) == 0 || entry[0] != '"' {
				return nil, malformed("tags", "tag entry is not a string")
			}
			var s string
			if err := json.Unmarshal(entry, &s); err != nil {
				return nil, malformed("tags", "tag entry is not a string")
			}
			tag = append(tag, s)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func malformed(field, reason string) error {
	return &chesserrors.MalformedEventError{Field: field, Reason: reason}
}
