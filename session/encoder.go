package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	fieldID       = "id"
	fieldUsername = "username"
	fieldRole     = "role"
)

// EncodeIdentity renders an identity as a flat JSON object: id, username and
// role next to any extra attributes. Attrs never override the three core fields.
func EncodeIdentity(ident Identity) ([]byte, error) {
	obj := make(map[string]any, len(ident.Attrs)+3)
	for k, v := range ident.Attrs {
		obj[k] = v
	}
	if ident.ID != "" {
		obj[fieldID] = ident.ID
	} else {
		delete(obj, fieldID)
	}
	if ident.Username != "" {
		obj[fieldUsername] = ident.Username
	} else {
		delete(obj, fieldUsername)
	}
	if ident.Role != "" {
		obj[fieldRole] = string(ident.Role)
	} else {
		delete(obj, fieldRole)
	}
	return json.Marshal(obj)
}

// DecodeIdentity parses a JSON identity. The id may be a JSON number or
// string. Anything that is not a JSON object yields [ErrCorruptIdentity].
func DecodeIdentity(data []byte) (Identity, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	if obj == nil {
		return Identity{}, fmt.Errorf("%w: null identity", ErrCorruptIdentity)
	}

	var ident Identity
	for k, v := range obj {
		switch k {
		case fieldID:
			id, err := scalarString(v)
			if err != nil {
				return Identity{}, fmt.Errorf("%w: id: %v", ErrCorruptIdentity, err)
			}
			ident.ID = id
		case fieldUsername:
			name, err := scalarString(v)
			if err != nil {
				return Identity{}, fmt.Errorf("%w: username: %v", ErrCorruptIdentity, err)
			}
			ident.Username = name
		case fieldRole:
			role, err := scalarString(v)
			if err != nil {
				return Identity{}, fmt.Errorf("%w: role: %v", ErrCorruptIdentity, err)
			}
			ident.Role = Role(strings.TrimSpace(role))
		default:
			if v == nil {
				continue
			}
			if ident.Attrs == nil {
				ident.Attrs = make(map[string]any)
			}
			ident.Attrs[k] = v
		}
	}
	return ident, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return "", fmt.Errorf("unexpected boolean")
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}
