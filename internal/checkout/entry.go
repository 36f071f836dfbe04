package checkout

import (
	"bytes"
	"encoding/json"
)

// AddonRef identifies an add-on either as a bare id or as an object with an id.
type AddonRef struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts "key" and {"id":"key", ...}.
func (a *AddonRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.ID = obj.ID
	return nil
}
