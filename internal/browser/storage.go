package browser

import (
	"fmt"

	"github.com/kuitang/e2eauth/internal/urlutil"
)

// Scripts run through Page.Evaluate. Fakes in tests match on these values.
const (
	ReadStorageScript  = `(keys) => Object.fromEntries(keys.map((k) => [k, window.localStorage.getItem(k)]))`
	WriteStorageScript = `(entries) => { for (const [k, v] of Object.entries(entries)) window.localStorage.setItem(k, v); return true; }`
)

// StorageState is a snapshot of selected localStorage keys for one origin.
type StorageState struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"localStorage"`
}

// ReadStorage returns the localStorage values for keys. Missing keys map to "".
func ReadStorage(page Page, keys []string) (map[string]string, error) {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	raw, err := page.Evaluate(ReadStorageScript, args)
	if err != nil {
		return nil, fmt.Errorf("read storage: %w", err)
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = ""
	}
	if raw == nil {
		return out, nil
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("read storage: unexpected result type %T", raw)
	}
	for _, k := range keys {
		switch v := values[k].(type) {
		case nil:
		case string:
			out[k] = v
		default:
			return nil, fmt.Errorf("read storage: key %q holds %T", k, v)
		}
	}
	return out, nil
}

// WriteStorage sets every entry in localStorage.
func WriteStorage(page Page, entries map[string]string) error {
	arg := make(map[string]any, len(entries))
	for k, v := range entries {
		arg[k] = v
	}
	if _, err := page.Evaluate(WriteStorageScript, arg); err != nil {
		return fmt.Errorf("write storage: %w", err)
	}
	return nil
}

// SnapshotStorage reads keys and pairs them with the page origin. Empty
// values are left out.
func SnapshotStorage(page Page, keys []string) (StorageState, error) {
	values, err := ReadStorage(page, keys)
	if err != nil {
		return StorageState{}, err
	}
	state := StorageState{
		Origin:       urlutil.Origin(page.URL()),
		LocalStorage: make(map[string]string, len(values)),
	}
	for k, v := range values {
		if v != "" {
			state.LocalStorage[k] = v
		}
	}
	return state, nil
}
