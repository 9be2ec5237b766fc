// Package digest computes the SHA-256 fingerprints that anchor the audit
// ledger, the document hash chain, and certificate self-hashes.
//
// All digests are rendered as 64 uppercase hex characters. Structured values
// are canonicalized first (object keys sorted lexicographically, recursively)
// so two logically identical payloads always digest identically regardless of
// field insertion order.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	dErrors "sealedrecord/pkg/domain-errors"
)

// HexLength is the width of every digest string this package produces.
const HexLength = 64

// Bytes returns the uppercase hex SHA-256 digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// String digests the UTF-8 bytes of s.
func String(s string) string {
	return Bytes([]byte(s))
}

// Stream digests r with constant memory.
func Stream(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", dErrors.Wrap(dErrors.CodeUnavailable, "digest stream", err)
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// File digests the file at path without loading it into memory.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeUnavailable, "open "+path, err)
	}
	defer f.Close()
	return Stream(f)
}

// Canonical digests the canonical JSON rendering of v.
func Canonical(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Bytes(b), nil
}

// Canonicalize renders v as deterministic JSON: object keys sorted
// lexicographically at every depth, no insignificant whitespace. The
// transform is idempotent: canonicalizing already-canonical JSON yields the
// same bytes.
//
// Values that cannot be represented in JSON (channels, funcs) are a
// programming error and surface as CodeInvalidInput rather than being
// silently skipped.
func Canonicalize(v any) ([]byte, error) {
	lowered, err := lower(v)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, lowered); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// lower round-trips v through encoding/json so structs, maps, and slices all
// collapse to the map[string]any / []any / scalar domain before ordering.
func lower(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInvalidInput, "value is not canonicalizable", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "decode canonical intermediate", err)
	}
	return out, nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := writeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case json.Number:
		sb.WriteString(val.String())
	case string, bool, nil:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(b)
	default:
		return dErrors.Newf(dErrors.CodeInternal, "unexpected canonical value %T", v)
	}
	return nil
}

// Chain digests the concatenation of a predecessor digest and the canonical
// rendering of payload. This is the single primitive both hash chains
// (ledger events and document lineage) are built on.
func Chain(previous string, payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Bytes(append([]byte(previous), canonical...)), nil
}

// Valid reports whether s looks like a digest this package produced.
func Valid(s string) bool {
	if len(s) != HexLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Genesis is the previous-hash marker for the first event of a document's
// chain. Zero-valued but digest-width so storage columns stay uniform.
var Genesis = strings.Repeat("0", HexLength)
