package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// hashWidth is the number of hex characters of the content hash kept in the
// key. 8 hex chars = 32 bits: readable, and collision probability stays
// negligible at realistic key cardinalities (birthday bound ~50% at ~77k
// keys per class). The hash is NOT cryptographically collision-free; two
// semantically different inputs collide with probability bounded by this
// width, which is an accepted trade-off for key readability.
const hashWidth = 8

// hourBucketSeconds is the granularity of the optional time partition tag.
const hourBucketSeconds = 3600

// Key is the canonical identity of a cache entry: the data class, the
// content hash of the normalized parameters, and optional partition tags.
type Key struct {
	// Class is the data class the key belongs to.
	Class Class

	// Hash is the truncated content hash of the canonical params form.
	Hash string

	// Prefix is an optional namespace prepended to the key string.
	Prefix string

	// UserID partitions the key per user when set.
	UserID string

	// HourBucket is floor(unix/3600) when time partitioning was requested,
	// 0 otherwise. Hour granularity lets time-sensitive classes roll over
	// without explicit invalidation.
	HourBucket int64

	// NormalizedParams is the parameter map after normalization.
	NormalizedParams map[string]any

	canonical []byte
}

// String composes the key string:
//
//	[prefix:]class:hash[:user:<id>][:t:<hourBucket>]
func (k Key) String() string {
	parts := make([]string, 0, 6)
	if k.Prefix != "" {
		parts = append(parts, k.Prefix)
	}
	parts = append(parts, string(k.Class), k.Hash)
	if k.UserID != "" {
		parts = append(parts, "user", k.UserID)
	}
	if k.HourBucket > 0 {
		parts = append(parts, "t", fmt.Sprintf("%d", k.HourBucket))
	}
	return strings.Join(parts, ":")
}

// CanonicalParams returns the deterministic JSON serialization of the
// normalized parameters (sorted keys at every level). This is the form the
// durable tier is queryable by.
func (k Key) CanonicalParams() json.RawMessage {
	return json.RawMessage(k.canonical)
}

// KeyOptions controls optional key partitioning.
type KeyOptions struct {
	// UserID scopes the key to one user (e.g. search history).
	UserID string

	// HourBucket appends an hour-granularity time tag, partitioning
	// time-sensitive classes by wall-clock hour.
	HourBucket bool
}

// Normalizer canonicalizes arbitrary request parameters into stable cache
// keys.
//
// Contract: inputs that are semantically equal after normalization (key
// order, string casing, surrounding whitespace, array order, nil/empty
// entries) always produce the same key. Semantically different inputs
// produce different keys with high probability bounded by the hash width;
// see the hashWidth doc for the collision caveat.
type Normalizer struct {
	prefix string
}

// NewNormalizer creates a Normalizer. The prefix, when non-empty, namespaces
// every generated key.
func NewNormalizer(prefix string) *Normalizer {
	return &Normalizer{prefix: strings.TrimSpace(prefix)}
}

// GenerateKey normalizes params and builds the cache key for class.
// Returns a NormalizationError for an empty class or parameters that cannot
// be canonicalized.
func (n *Normalizer) GenerateKey(class Class, params map[string]any, opts KeyOptions) (Key, error) {
	if strings.TrimSpace(string(class)) == "" {
		return Key{}, newNormalizationError(class, "class must not be empty", nil)
	}

	normalized, err := normalizeMap(params)
	if err != nil {
		return Key{}, newNormalizationError(class, "params not canonicalizable", err)
	}

	canonical, err := marshalCanonical(normalized)
	if err != nil {
		return Key{}, newNormalizationError(class, "canonical serialization failed", err)
	}

	key := Key{
		Class:            class,
		Hash:             hashCanonical(canonical),
		Prefix:           n.prefix,
		UserID:           strings.TrimSpace(opts.UserID),
		NormalizedParams: normalized,
		canonical:        canonical,
	}
	if opts.HourBucket {
		key.HourBucket = time.Now().Unix() / hourBucketSeconds
	}
	return key, nil
}

// hashCanonical computes the truncated content hash of the canonical form.
func hashCanonical(canonical []byte) string {
	sum := xxhash.Sum64(canonical)
	return fmt.Sprintf("%016x", sum)[:hashWidth]
}

// normalizeMap recursively normalizes a parameter map:
// strings are trimmed and lowercased, arrays sorted, nested maps recursed,
// and nil/empty-string entries dropped.
func normalizeMap(params map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(params))
	for key, value := range params {
		nv, keep, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", key, err)
		}
		if !keep {
			continue
		}
		normalized[strings.ToLower(strings.TrimSpace(key))] = nv
	}
	return normalized, nil
}

// normalizeValue normalizes one value. The second return is false when the
// value must be dropped (nil or empty string after trimming).
func normalizeValue(value any) (any, bool, error) {
	switch v := value.(type) {
	case nil:
		return nil, false, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			return nil, false, nil
		}
		return s, true, nil
	case map[string]any:
		nested, err := normalizeMap(v)
		if err != nil {
			return nil, false, err
		}
		return nested, true, nil
	case []any:
		sorted, err := normalizeSlice(v)
		if err != nil {
			return nil, false, err
		}
		return sorted, true, nil
	case []string:
		generic := make([]any, len(v))
		for i, s := range v {
			generic[i] = s
		}
		sorted, err := normalizeSlice(generic)
		if err != nil {
			return nil, false, err
		}
		return sorted, true, nil
	default:
		// Typed slices ([]int, []float64, ...) get the same sorted-copy
		// treatment as []any. []byte stays scalar: encoding/json renders it
		// as a base64 string, not an array.
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) &&
			rv.Type().Elem().Kind() != reflect.Uint8 {
			generic := make([]any, rv.Len())
			for i := range generic {
				generic[i] = rv.Index(i).Interface()
			}
			sorted, err := normalizeSlice(generic)
			if err != nil {
				return nil, false, err
			}
			return sorted, true, nil
		}

		// Numbers, bools, and any other JSON-representable scalar pass
		// through untouched. Unserializable values are rejected here so the
		// failure surfaces as a NormalizationError instead of a tier fault.
		if _, err := json.Marshal(v); err != nil {
			return nil, false, fmt.Errorf("unsupported value type %T: %w", v, err)
		}
		return v, true, nil
	}
}

// normalizeSlice normalizes each element, drops removed ones, and sorts the
// result by canonical JSON form so element order never affects the key.
func normalizeSlice(values []any) ([]any, error) {
	type sortable struct {
		value     any
		canonical string
	}
	items := make([]sortable, 0, len(values))
	for i, value := range values {
		nv, keep, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if !keep {
			continue
		}
		canonical, err := marshalCanonical(nv)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, sortable{value: nv, canonical: string(canonical)})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].canonical < items[j].canonical
	})
	sorted := make([]any, len(items))
	for i, item := range items {
		sorted[i] = item.value
	}
	return sorted, nil
}

// marshalCanonical produces deterministic JSON: object keys sorted at every
// nesting level. encoding/json leaves map iteration order unspecified, so
// objects are emitted manually.
func marshalCanonical(value any) ([]byte, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		out := []byte("{")
		for i, key := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			keyJSON, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			out = append(out, keyJSON...)
			out = append(out, ':')
			valJSON, err := marshalCanonical(v[key])
			if err != nil {
				return nil, err
			}
			out = append(out, valJSON...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte("[")
		for i, elem := range v {
			if i > 0 {
				out = append(out, ',')
			}
			elemJSON, err := marshalCanonical(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, elemJSON...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(v)
	}
}
