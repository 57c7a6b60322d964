package model

import (
	"fmt"
	"strings"

	"xdao.co/imagevault/account"
)

// Tuple is one loosely typed row as returned by a ledger read.
type Tuple = map[string]any

// Ledger tuple field names.
const (
	FieldOwner       = "owner"
	FieldName        = "name"
	FieldDescription = "description"
	FieldURI         = "uri"
	FieldUser        = "user"
	FieldAccess      = "access"
)

// CoerceRecords converts display() rows into FileRecords. Rows without an owner
// field are attributed to owner. Any malformed row fails the whole batch; a
// partially coerced result is never returned.
func CoerceRecords(owner account.Account, rows []Tuple) ([]FileRecord, error) {
	out := make([]FileRecord, 0, len(rows))
	for i, row := range rows {
		rec := FileRecord{Owner: owner}
		if raw, ok := row[FieldOwner]; ok {
			a, err := coerceAccount(raw)
			if err != nil {
				return nil, rowError(i, FieldOwner, err)
			}
			rec.Owner = a
		}
		var err error
		if rec.Name, err = coerceString(row, FieldName); err != nil {
			return nil, rowError(i, FieldName, err)
		}
		if rec.Description, err = coerceString(row, FieldDescription); err != nil {
			return nil, rowError(i, FieldDescription, err)
		}
		if rec.ContentRef, err = coerceString(row, FieldURI); err != nil {
			return nil, rowError(i, FieldURI, err)
		}
		if strings.TrimSpace(rec.ContentRef) == "" {
			return nil, rowError(i, FieldURI, fmt.Errorf("empty"))
		}
		out = append(out, rec)
	}
	return out, nil
}

// CoerceGrants converts shareAccess() rows into AccessGrants, preserving order.
func CoerceGrants(rows []Tuple) ([]AccessGrant, error) {
	out := make([]AccessGrant, 0, len(rows))
	for i, row := range rows {
		raw, ok := row[FieldUser]
		if !ok {
			return nil, rowError(i, FieldUser, fmt.Errorf("missing"))
		}
		grantee, err := coerceAccount(raw)
		if err != nil {
			return nil, rowError(i, FieldUser, err)
		}
		active, err := coerceBool(row[FieldAccess])
		if err != nil {
			return nil, rowError(i, FieldAccess, err)
		}
		out = append(out, AccessGrant{Grantee: grantee, Active: active})
	}
	return out, nil
}

func rowError(i int, field string, err error) error {
	return Markf(ErrLedgerUnavailable, "malformed ledger row %d: field %q: %v", i, field, err)
}

func coerceString(row Tuple, field string) (string, error) {
	raw, ok := row[field]
	if !ok {
		return "", fmt.Errorf("missing")
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("want string, got %T", raw)
	}
}

func coerceAccount(raw any) (account.Account, error) {
	switch v := raw.(type) {
	case string:
		return account.Parse(v)
	case []byte:
		if len(v) == account.Size {
			return account.FromBytes(v)
		}
		return account.Parse(string(v))
	default:
		return "", fmt.Errorf("want account, got %T", raw)
	}
}

func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case uint64:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	case nil:
		return false, fmt.Errorf("missing")
	}
	return false, fmt.Errorf("want bool, got %T", raw)
}
